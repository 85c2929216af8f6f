package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("CF_TEST_HOST", "db.internal")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable wins", "host: ${CF_TEST_HOST:localhost}", "host: db.internal"},
		{"default used when unset", "host: ${CF_TEST_MISSING:localhost}", "host: localhost"},
		{"empty default allowed", "password: ${CF_TEST_MISSING:}", "password: "},
		{"no default keeps placeholder", "secret: ${CF_TEST_MISSING}", "secret: ${CF_TEST_MISSING}"},
		{"multiple placeholders", "${CF_TEST_HOST:a}:${CF_TEST_PORT:5432}", "db.internal:5432"},
		{"plain text untouched", "level: info", "level: info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}
