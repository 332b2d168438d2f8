package app

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/iov-one/drugchain/x/metrics"
	"github.com/iov-one/drugchain/x/participant"
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/commands/server"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendermint/tendermint/libs/log"
)

func TestGenInitOptions(t *testing.T) {
	owner := weavetest.NewCondition().Address()
	raw, err := GenInitOptions([]string{hex.EncodeToString(owner)})
	assert.Nil(t, err)

	var opts weave.Options
	assert.Nil(t, json.Unmarshal(raw, &opts))

	db := store.MemStore()
	var ini migration.Initializer
	assert.Nil(t, ini.FromGenesis(opts, weave.GenesisParams{}, db))
	var pini participant.Initializer
	assert.Nil(t, pini.FromGenesis(opts, weave.GenesisParams{}, db))

	var conf participant.Configuration
	assert.Nil(t, gconf.Load(db, "participant", &conf))
	assert.Equal(t, owner, conf.Owner)
	assert.Equal(t, DefaultValidName, conf.ValidName)
}

func TestGenInitOptionsRejectsInvalidOwner(t *testing.T) {
	if _, err := GenInitOptions([]string{"not an address"}); err == nil {
		t.Fatal("want error")
	}
}

func TestAppGeneratorSharesMetrics(t *testing.T) {
	gen := NewAppGenerator(metrics.New(prometheus.NewRegistry()))
	// Restarting the server within a process must not register the
	// collectors again.
	for i := 0; i < 2; i++ {
		a, err := gen(&server.Options{Logger: log.NewNopLogger()})
		assert.Nil(t, err)
		if a == nil {
			t.Fatal("no application created")
		}
	}
}
