package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsDSN(t *testing.T) {
	s := Settings{Host: "localhost", User: "atlas", Password: "secret", Name: "atlas", Port: "5432"}

	assert.Equal(t, "host=localhost user=atlas password=secret dbname=atlas port=5432 sslmode=disable TimeZone=UTC", s.DSN())

	s.SSLMode = "require"
	assert.Contains(t, s.DSN(), "sslmode=require")
}
