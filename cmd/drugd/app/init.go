package app

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/iov-one/drugchain/x/metrics"
	"github.com/iov-one/drugchain/x/participant"
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/commands/server"
	"github.com/iov-one/weave/crypto"
	"github.com/iov-one/weave/migration"
	abci "github.com/tendermint/tendermint/abci/types"
)

// DefaultValidName is the participant name rule written to a generated
// genesis file.
const DefaultValidName = `^[A-Za-z0-9 .,&'-]{2,64}$`

// GenInitOptions will produce the genesis options for a new chain. The first
// argument is the address of the registry owner. If not given, a new key is
// generated and printed out.
func GenInitOptions(args []string) (json.RawMessage, error) {
	var owner weave.Address
	if len(args) > 0 {
		addr, err := weave.ParseAddress(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid owner address %q: %s", args[0], err)
		}
		owner = addr
	} else {
		addr, keys, err := GenerateKey()
		if err != nil {
			return nil, err
		}
		owner = addr
		fmt.Println(keys)
	}
	return GenesisOptions(owner, DefaultValidName)
}

// GenesisOptions returns the genesis options of a chain whose participant
// registry is administrated by given owner.
func GenesisOptions(owner weave.Address, validName string) (json.RawMessage, error) {
	type schema struct {
		Pkg string `json:"pkg"`
		Ver uint32 `json:"ver"`
	}
	opts := map[string]interface{}{
		"conf": map[string]interface{}{
			"migration": migration.Configuration{
				Admin: owner,
			},
			"participant": participant.Configuration{
				Metadata:  &weave.Metadata{Schema: 1},
				Owner:     owner,
				ValidName: validName,
			},
		},
		"initialize_schema": []schema{
			{Pkg: "participant", Ver: 1},
			{Pkg: "drug", Ver: 1},
			{Pkg: "sigs", Ver: 1},
		},
		"participant": []interface{}{},
	}
	return json.MarshalIndent(opts, "", "  ")
}

// NewAppGenerator returns a server.AppGenerator building the drugchain
// application. Metrics are registered once by the caller and shared by every
// application the generator creates.
func NewAppGenerator(m *metrics.Metrics) server.AppGenerator {
	return func(options *server.Options) (abci.Application, error) {
		// db goes in a subdir, but "" -> "" for memdb
		var dbPath string
		if options.Home != "" {
			dbPath = filepath.Join(options.Home, "drugchain.db")
		}

		application, err := Application("drugd", Stack(m), TxDecoder, dbPath, options.Debug)
		if err != nil {
			return nil, err
		}
		application.WithInit(app.ChainInitializers(
			&migration.Initializer{},
			&participant.Initializer{},
		))

		// set the logger and return
		application.WithLogger(options.Logger)
		return application, nil
	}
}

type output struct {
	Pubkey *crypto.PublicKey  `json:"pub_key"`
	Secret *crypto.PrivateKey `json:"secret"`
}

// GenerateKey returns the address of a new public key, along with a json
// representation of the keys.
func GenerateKey() (weave.Address, string, error) {
	privKey := crypto.GenPrivKeyEd25519()
	pubKey := privKey.PublicKey()
	addr := pubKey.Address()

	out := output{Pubkey: pubKey, Secret: privKey}
	keys, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return addr, string(keys), nil
}
