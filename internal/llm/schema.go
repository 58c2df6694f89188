package llm

// decisionJSONSchema is the strict JSON schema accepted by schema-capable
// providers (OpenAI's response_format: json_schema) and embedded as text
// for providers that only support a bare json_object response.
var decisionJSONSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"operation": map[string]interface{}{
			"type": "string",
			"enum": []string{"open", "close", "hold"},
		},
		"symbol": map[string]interface{}{"type": "string"},
		"direction": map[string]interface{}{
			"type": "string",
			"enum": []string{"long", "short"},
		},
		"target_portion_of_balance": map[string]interface{}{
			"type": "number", "minimum": 0, "maximum": 1,
		},
		"leverage": map[string]interface{}{
			"type": "integer", "minimum": 1, "maximum": 10,
		},
		"stop_loss_pct": map[string]interface{}{
			"type": "number", "minimum": 0.5, "maximum": 10,
		},
		"take_profit_pct": map[string]interface{}{
			"type": "number", "minimum": 1, "maximum": 50,
		},
		"reason": map[string]interface{}{
			"type": "string", "minLength": 10, "maxLength": 500,
		},
		"confidence": map[string]interface{}{
			"type": "number", "minimum": 0, "maximum": 1,
		},
	},
	"required": []string{
		"operation", "symbol", "direction", "target_portion_of_balance",
		"leverage", "stop_loss_pct", "take_profit_pct", "reason", "confidence",
	},
	"additionalProperties": false,
}

const embeddedSchemaPreamble = `You are a professional trading assistant. Analyze the data and respond EXCLUSIVELY with valid JSON in this exact shape:

{
  "operation": "open|close|hold",
  "symbol": "COIN_SYMBOL",
  "direction": "long|short",
  "target_portion_of_balance": 0.1,
  "leverage": 3,
  "stop_loss_pct": 2.0,
  "take_profit_pct": 5.0,
  "reason": "Detailed explanation of the decision",
  "confidence": 0.7
}

operation must be one of "open", "close", "hold". direction must be "long" or "short".
target_portion_of_balance is between 0.0 and 1.0. leverage is an integer between 1 and 10.
stop_loss_pct is between 0.5 and 10. take_profit_pct is between 1 and 50. confidence is between 0.0 and 1.0.
Respond with ONLY the JSON, no other text.`

const strictSchemaPreamble = `You are a professional trading assistant. Analyze the data and respond ONLY with valid JSON matching the required schema.`
