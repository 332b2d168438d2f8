package participant

import (
	"encoding/json"
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

// toOptions serializes given genesis content the same way a genesis file is
// read, so that addresses use their canonical JSON representation.
func toOptions(t testing.TB, genesis interface{}) weave.Options {
	t.Helper()
	raw, err := json.Marshal(genesis)
	if err != nil {
		t.Fatalf("cannot marshal genesis: %s", err)
	}
	var opts weave.Options
	if err := json.Unmarshal(raw, &opts); err != nil {
		t.Fatalf("cannot unmarshal genesis: %s", err)
	}
	return opts
}

type genesisParticipant struct {
	Address  weave.Address  `json:"address"`
	Name     string         `json:"name"`
	Role     string         `json:"role"`
	Verified bool           `json:"verified,omitempty"`
	Since    weave.UnixTime `json:"since,omitempty"`
}

func TestGenesisInitializer(t *testing.T) {
	owner := weavetest.NewCondition().Address()
	regulator := weavetest.NewCondition().Address()
	pharmacy := weavetest.NewCondition().Address()

	opts := toOptions(t, map[string]interface{}{
		"conf": map[string]interface{}{
			"participant": map[string]interface{}{
				"owner":      owner,
				"valid_name": "^[A-Za-z0-9 .,&'-]{2,64}$",
			},
		},
		"participant": []genesisParticipant{
			{Address: regulator, Name: "Drug Agency", Role: "regulator", Verified: true, Since: 1623715200},
			{Address: pharmacy, Name: "Corner Pharmacy", Role: "pharmacy"},
		},
	})

	db := store.MemStore()
	migration.MustInitPkg(db, "participant")

	var ini Initializer
	if err := ini.FromGenesis(opts, weave.GenesisParams{}, db); err != nil {
		t.Fatalf("cannot load genesis: %s", err)
	}

	conf, err := loadConf(db)
	if err != nil {
		t.Fatalf("cannot load configuration: %s", err)
	}
	assert.Equal(t, owner, conf.Owner)

	r := NewRegistry()
	p, err := r.Participant(db, regulator)
	if err != nil {
		t.Fatalf("cannot get regulator: %s", err)
	}
	assert.Equal(t, "Drug Agency", p.Name)
	assert.Equal(t, RoleRegulator, p.Role)
	assert.Equal(t, true, p.Verified)
	assert.Equal(t, owner, p.VerifiedBy)
	assert.Equal(t, weave.UnixTime(1623715200), p.VerifiedAt)

	assert.Equal(t, false, r.IsVerified(db, pharmacy))
	assert.Equal(t, false, r.IsVerified(db, weavetest.NewCondition().Address()))
}

func TestGenesisInitializerRejectsUnknownRole(t *testing.T) {
	opts := toOptions(t, map[string]interface{}{
		"conf": map[string]interface{}{
			"participant": map[string]interface{}{
				"owner":      weavetest.NewCondition().Address(),
				"valid_name": "^.+$",
			},
		},
		"participant": []genesisParticipant{
			{Address: weavetest.NewCondition().Address(), Name: "Alice", Role: "wholesaler"},
		},
	})
	db := store.MemStore()
	migration.MustInitPkg(db, "participant")

	var ini Initializer
	if err := ini.FromGenesis(opts, weave.GenesisParams{}, db); !ErrInvalidRole.Is(err) {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func TestGenesisWithoutConfiguration(t *testing.T) {
	db := store.MemStore()
	var ini Initializer
	if err := ini.FromGenesis(weave.Options{}, weave.GenesisParams{}, db); err != nil {
		t.Fatalf("cannot load empty genesis: %s", err)
	}
	if _, err := loadConf(db); !errors.ErrNotFound.Is(err) {
		t.Fatalf("want no configuration, got %+v", err)
	}
}
