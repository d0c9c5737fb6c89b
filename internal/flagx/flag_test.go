package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			"separate value",
			[]string{"-a", ":8080", "-x", "junk"},
			[]string{"-a"},
			[]string{"-a", ":8080"},
		},
		{
			"equals form",
			[]string{"--config=conf.json", "-d=dsn"},
			[]string{"--config"},
			[]string{"--config=conf.json"},
		},
		{
			"flag without value",
			[]string{"-v", "-a", ":8080"},
			[]string{"-v", "-a"},
			[]string{"-v", "-a", ":8080"},
		},
		{
			"value looking like flag is not consumed",
			[]string{"-a", "-d", "dsn"},
			[]string{"-a", "-d"},
			[]string{"-a", "-d", "dsn"},
		},
		{
			"nothing allowed",
			[]string{"-a", ":8080"},
			nil,
			[]string{},
		},
		{
			"empty input",
			nil,
			[]string{"-a"},
			[]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}
