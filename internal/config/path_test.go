package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("CATALOG_IMAGES", "/srv/images")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/catalog.db", want: filepath.Join(home, "catalog.db")},
		{in: "$CATALOG_IMAGES/products", want: "/srv/images/products"},
		{in: "/abs/path", want: "/abs/path"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestResolveFrom(t *testing.T) {
	tests := []struct {
		dir  string
		in   string
		want string
	}{
		{dir: "/etc/catalog", in: "", want: ""},
		{dir: "/etc/catalog", in: "rules.yaml", want: "/etc/catalog/rules.yaml"},
		{dir: "/etc/catalog", in: "../shared/images", want: "/etc/shared/images"},
		{dir: "/etc/catalog", in: "/srv/images", want: "/srv/images"},
		{dir: "", in: "rules.yaml", want: "rules.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.dir+"|"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveFrom(tt.dir, tt.in))
		})
	}
}
