package contract

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"

	"github.com/iov-one/drugchain/x/drug"
	"github.com/iov-one/drugchain/x/participant"
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
)

type operation struct {
	// Params lists the names of positional arguments.
	Params []string
	// ReadOnly operations never change the state.
	ReadOnly bool

	run func(l *Ledger, caller string, args []interface{}) (interface{}, error)
}

var operations = map[string]operation{
	"manufacture-drug": {
		Params: []string{"name", "batch-number", "manufacture-date", "expiry-date"},
		run:    manufactureDrug,
	},
	"transfer-drug": {
		Params: []string{"drug-id", "new-owner"},
		run:    transferDrug,
	},
	"update-drug-stage": {
		Params: []string{"drug-id", "stage"},
		run:    updateDrugStage,
	},
	"record-supply-chain-step": {
		Params: []string{"drug-id", "stage"},
		run:    recordSupplyChainStep,
	},
	"get-drug-info": {
		Params:   []string{"drug-id"},
		ReadOnly: true,
		run:      getDrugInfo,
	},
	"register-participant": {
		Params: []string{"name", "role"},
		run:    registerParticipant,
	},
	"verify-participant": {
		Params: []string{"identity"},
		run:    setVerified(true),
	},
	"revoke-participant": {
		Params: []string{"identity"},
		run:    setVerified(false),
	},
	"get-participant-info": {
		Params:   []string{"identity"},
		ReadOnly: true,
		run:      getParticipantInfo,
	},
}

// OperationInfo describes an operation provided by the ledger.
type OperationInfo struct {
	Name     string   `json:"name"`
	Params   []string `json:"params"`
	ReadOnly bool     `json:"read_only"`
}

// Operations returns all operations sorted by name.
func Operations() []OperationInfo {
	res := make([]OperationInfo, 0, len(operations))
	for name, op := range operations {
		res = append(res, OperationInfo{Name: name, Params: op.Params, ReadOnly: op.ReadOnly})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func manufactureDrug(l *Ledger, caller string, args []interface{}) (interface{}, error) {
	var errs error
	name, err := textArg(args[0])
	errs = errors.AppendField(errs, "name", err)
	batch, err := textArg(args[1])
	errs = errors.AppendField(errs, "batch-number", err)
	made, err := intArg(args[2])
	errs = errors.AppendField(errs, "manufacture-date", err)
	expires, err := intArg(args[3])
	errs = errors.AppendField(errs, "expiry-date", err)
	if errs != nil {
		return nil, errs
	}

	res, err := l.deliver(caller, &drug.ManufactureDrugMsg{
		Metadata:       &weave.Metadata{Schema: 1},
		Name:           name,
		BatchNumber:    batch,
		ManufacturedAt: weave.UnixTime(made),
		ExpiresAt:      weave.UnixTime(expires),
	})
	if err != nil {
		return nil, err
	}
	return drugIDValue(res.Data), nil
}

func transferDrug(l *Ledger, caller string, args []interface{}) (interface{}, error) {
	id, err := drugIDArg(args[0])
	if err != nil {
		return nil, errors.Field("drug-id", err, "invalid")
	}
	owner, err := principalArg(args[1])
	if err != nil {
		return nil, errors.Field("new-owner", err, "invalid")
	}
	_, err = l.deliver(caller, &drug.TransferDrugMsg{
		Metadata: &weave.Metadata{Schema: 1},
		DrugID:   id,
		NewOwner: PrincipalAddress(owner),
	}, owner)
	return err == nil, err
}

func updateDrugStage(l *Ledger, caller string, args []interface{}) (interface{}, error) {
	id, stage, err := stageArgs(args)
	if err != nil {
		return nil, err
	}
	_, err = l.deliver(caller, &drug.UpdateDrugStageMsg{
		Metadata: &weave.Metadata{Schema: 1},
		DrugID:   id,
		Stage:    stage,
	})
	return err == nil, err
}

func recordSupplyChainStep(l *Ledger, caller string, args []interface{}) (interface{}, error) {
	id, stage, err := stageArgs(args)
	if err != nil {
		return nil, err
	}
	_, err = l.deliver(caller, &drug.RecordSupplyChainStepMsg{
		Metadata: &weave.Metadata{Schema: 1},
		DrugID:   id,
		Stage:    stage,
	})
	return err == nil, err
}

func stageArgs(args []interface{}) ([]byte, drug.Stage, error) {
	id, err := drugIDArg(args[0])
	if err != nil {
		return nil, 0, errors.Field("drug-id", err, "invalid")
	}
	name, err := textArg(args[1])
	if err != nil {
		return nil, 0, errors.Field("stage", err, "invalid")
	}
	stage, err := drug.ParseStage(name)
	if err != nil {
		return nil, 0, err
	}
	return id, stage, nil
}

// DrugInfo is the public representation of a drug record.
type DrugInfo struct {
	DrugID          int64      `json:"drug-id"`
	Name            string     `json:"name"`
	BatchNumber     string     `json:"batch-number"`
	ManufactureDate int64      `json:"manufacture-date"`
	ExpiryDate      int64      `json:"expiry-date"`
	Manufacturer    string     `json:"manufacturer"`
	CurrentOwner    string     `json:"current-owner"`
	CurrentStage    string     `json:"current-stage"`
	Steps           []StepInfo `json:"steps"`
}

// StepInfo is a single entry of the drug history.
type StepInfo struct {
	Actor     string `json:"actor"`
	Stage     string `json:"stage"`
	Timestamp int64  `json:"timestamp"`
}

func getDrugInfo(l *Ledger, caller string, args []interface{}) (interface{}, error) {
	id, err := drugIDArg(args[0])
	if err != nil {
		return nil, errors.Field("drug-id", err, "invalid")
	}
	d, err := drug.Get(l.db, id)
	if err != nil {
		return nil, err
	}
	info := DrugInfo{
		DrugID:          drugIDValue(id),
		Name:            d.Name,
		BatchNumber:     d.BatchNumber,
		ManufactureDate: int64(d.ManufacturedAt),
		ExpiryDate:      int64(d.ExpiresAt),
		Manufacturer:    l.dir.Principal(d.Manufacturer),
		CurrentOwner:    l.dir.Principal(d.Owner),
		CurrentStage:    d.Stage.Name(),
		Steps:           make([]StepInfo, 0, len(d.Steps)),
	}
	for _, s := range d.Steps {
		info.Steps = append(info.Steps, StepInfo{
			Actor:     l.dir.Principal(s.Actor),
			Stage:     s.Stage.Name(),
			Timestamp: int64(s.RecordedAt),
		})
	}
	return info, nil
}

func registerParticipant(l *Ledger, caller string, args []interface{}) (interface{}, error) {
	name, err := textArg(args[0])
	if err != nil {
		return nil, errors.Field("name", err, "invalid")
	}
	roleName, err := textArg(args[1])
	if err != nil {
		return nil, errors.Field("role", err, "invalid")
	}
	role, err := participant.ParseRole(roleName)
	if err != nil {
		return nil, err
	}
	_, err = l.deliver(caller, &participant.RegisterParticipantMsg{
		Metadata: &weave.Metadata{Schema: 1},
		Name:     name,
		Role:     role,
	})
	return err == nil, err
}

func setVerified(verified bool) func(*Ledger, string, []interface{}) (interface{}, error) {
	return func(l *Ledger, caller string, args []interface{}) (interface{}, error) {
		identity, err := principalArg(args[0])
		if err != nil {
			return nil, errors.Field("identity", err, "invalid")
		}
		addr := PrincipalAddress(identity)
		var msg weave.Msg = &participant.RevokeParticipantMsg{
			Metadata: &weave.Metadata{Schema: 1},
			Address:  addr,
		}
		if verified {
			msg = &participant.VerifyParticipantMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Address:  addr,
			}
		}
		_, err = l.deliver(caller, msg, identity)
		return err == nil, err
	}
}

// ParticipantInfo is the public representation of a participant record.
type ParticipantInfo struct {
	Identity     string `json:"identity"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Verified     bool   `json:"verified"`
	RegisteredAt int64  `json:"registered-at"`
	VerifiedBy   string `json:"verified-by,omitempty"`
}

func getParticipantInfo(l *Ledger, caller string, args []interface{}) (interface{}, error) {
	identity, err := principalArg(args[0])
	if err != nil {
		return nil, errors.Field("identity", err, "invalid")
	}
	p, err := participant.NewRegistry().Participant(l.db, PrincipalAddress(identity))
	if err != nil {
		return nil, err
	}
	return ParticipantInfo{
		Identity:     identity,
		Name:         p.Name,
		Role:         p.Role.Name(),
		Verified:     p.Verified,
		RegisteredAt: int64(p.RegisteredAt),
		VerifiedBy:   l.dir.Principal(p.VerifiedBy),
	}, nil
}

func textArg(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.Wrapf(errors.ErrType, "want text, got %T", v)
	}
	return s, nil
}

// principalArg accepts a non empty principal name.
func principalArg(v interface{}) (string, error) {
	s, err := textArg(v)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", errors.Wrap(errors.ErrEmpty, "principal required")
	}
	return s, nil
}

// intArg accepts any integer type as well as values decoded from JSON.
func intArg(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, errors.Wrap(errors.ErrInput, "integer overflow")
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, errors.Wrapf(errors.ErrInput, "not an integer: %v", n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, errors.Wrapf(errors.ErrInput, "not an integer: %s", n)
		}
		return i, nil
	default:
		return 0, errors.Wrapf(errors.ErrType, "want integer, got %T", v)
	}
}

// drugIDArg returns the key of the drug with given ID. IDs that were never
// assigned, including non positive ones, map to keys that cannot be found.
func drugIDArg(v interface{}) ([]byte, error) {
	n, err := intArg(v)
	if err != nil {
		return nil, err
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(n))
	return key, nil
}

func drugIDValue(key []byte) int64 {
	if len(key) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(key))
}
