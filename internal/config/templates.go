package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "gateway":
		return gatewayTemplate, nil
	case "amfctl", "cli":
		return cliTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const gatewayTemplate = `name = "amfgate"
addr = ":9400"
path = "/amf"
format = "json"
mode = "inspect"
cors_origins = ["http://localhost:3000"]
auth_token = ""
max_payload_bytes = 16777216
max_depth = 64

[[message_classes]]
class = "com.example.messages.AuditMessage"
kind = "custom"

[[destinations]]
name = "userService"
operations = ["getUser", "listUsers"]
`

const cliTemplate = `format = "json"
max_depth = 64
max_payload_bytes = 16777216
gateway_config = "gateway.toml"
message_classes = []
`
