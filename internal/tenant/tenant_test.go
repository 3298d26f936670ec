package tenant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
tenants:
  - id: barbearia
    phone_number_id: "${BARBEARIA_PHONE_ID}"
    name: Barbearia do Zé
    address: Rua A, 10
    address_link: https://maps.google.com/?q=Rua+A
    hours: Seg a Sab 09h às 19h
    handoff:
      enabled: true
    catalog:
      services:
        - key: corte
          name: Corte de cabelo
          price: "45,00"
        - key: barba
          name: Barba
    booking:
      enabled: true
  - id: padaria
    phone_number_id: "2002"
    name: Padaria Central
    notify_emails: [dono@padaria.com.br]
`

func TestParseExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("BARBEARIA_PHONE_ID", "1001")

	cfgs, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, cfgs, 2)

	barber := cfgs[0]
	assert.Equal(t, "1001", barber.RoutingKey())
	assert.Equal(t, defaultHandoffMessage, barber.Handoff.Message)
	assert.Equal(t, []string{FieldService, FieldDate, FieldTime, FieldName}, barber.Booking.Require)
	assert.Equal(t, defaultConfirmText, barber.Booking.ConfirmText)
	assert.True(t, barber.Catalog.Services[0].HasPrice())
	assert.False(t, barber.Catalog.Services[1].HasPrice())
	assert.Equal(t, []string{"corte", "barba"}, barber.ServiceKeys())

	assert.False(t, cfgs[1].Booking.Enabled)
	assert.Equal(t, []string{"dono@padaria.com.br"}, cfgs[1].NotifyEmails)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"missing name":    "tenants:\n  - id: x\n",
		"bad email":       "tenants:\n  - id: x\n    name: X\n    notify_emails: [nope]\n",
		"empty list":      "tenants: []\n",
		"service w/o key": "tenants:\n  - id: x\n    name: X\n    catalog:\n      services:\n        - name: Corte\n",
		"duplicate ids":   "tenants:\n  - id: x\n    name: X\n  - id: x\n    name: Y\n",
		"shared routing":  "tenants:\n  - id: x\n    name: X\n    phone_number_id: \"1\"\n  - id: y\n    name: Y\n    phone_number_id: \"1\"\n",
		"not yaml at all": "tenants: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadFallsBackToBuiltin(t *testing.T) {
	t.Setenv("DIGITALWOLK_PHONE_NUMBER_ID", "")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "555")
	t.Setenv("JASPERS_PHONE_NUMBER_ID", "777")

	cfgs, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "digitalwolk", cfgs[0].ID)
	assert.Equal(t, "555", cfgs[0].RoutingKey())
	assert.Equal(t, "777", cfgs[1].RoutingKey())
}

func TestRegistryConfigFor(t *testing.T) {
	reg, err := NewRegistry([]Config{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}})
	require.NoError(t, err)

	cfg, err := reg.ConfigFor("b")
	require.NoError(t, err)
	assert.Equal(t, "B", cfg.Name)

	_, err = reg.ConfigFor("zzz")
	assert.True(t, errors.Is(err, ErrTenantNotFound))

	all := reg.AllTenants()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
}

func TestResolverIndexAndSingleTenantFallback(t *testing.T) {
	reg, err := NewRegistry([]Config{
		{ID: "a", Name: "A", PhoneNumberID: "100"},
		{ID: "b", Name: "B", PhoneNumberID: "200"},
	})
	require.NoError(t, err)
	res := NewResolver(reg)

	id, ok := res.Resolve("200")
	require.True(t, ok)
	assert.Equal(t, "b", id)

	_, ok = res.Resolve("999")
	assert.False(t, ok, "unknown key with several tenants must not resolve")

	_, ok = res.Resolve("")
	assert.False(t, ok)

	require.NoError(t, reg.Replace([]Config{{ID: "solo", Name: "Solo"}}))
	res.Refresh()

	id, ok = res.Resolve("999")
	require.True(t, ok)
	assert.Equal(t, "solo", id)
}

func TestReloaderSwapsConfiguration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenants:\n  - id: a\n    name: A\n    phone_number_id: \"1\"\n  - id: b\n    name: B\n    phone_number_id: \"2\"\n"), 0o600))

	reg, err := NewRegistry(nil)
	require.NoError(t, err)
	res := NewResolver(reg)
	reloader := NewReloader(FileLoader{Path: path}, reg, res)

	cfgs, err := reloader.Reload(context.Background())
	require.NoError(t, err)
	assert.Len(t, cfgs, 2)

	id, ok := res.Resolve("2")
	require.True(t, ok)
	assert.Equal(t, "b", id)

	require.NoError(t, os.WriteFile(path, []byte("tenants: ["), 0o600))
	_, err = reloader.Reload(context.Background())
	require.Error(t, err)

	id, ok = res.Resolve("1")
	require.True(t, ok, "failed reload keeps the previous index")
	assert.Equal(t, "a", id)
}
