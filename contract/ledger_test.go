package contract

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	deployer     = "ST1DEPLOYER"
	manufacturer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	distributor  = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"
	pharmacy     = "ST2JHG361ZXG51QTKY2NQCVBPPRRE2KZB1HR05NNC"
)

// steppingClock returns a clock that advances by one minute on every call.
func steppingClock() func() time.Time {
	now := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func newLedger(t testing.TB) *Ledger {
	t.Helper()
	l, err := NewLedger(deployer, WithClock(steppingClock()))
	require.NoError(t, err)
	return l
}

func requireOK(t testing.TB, res Result) interface{} {
	t.Helper()
	require.True(t, res.Success, "call failed: %s", res.Error)
	require.Empty(t, res.Error)
	return res.Value
}

func requireErr(t testing.TB, res Result, code string) {
	t.Helper()
	require.False(t, res.Success, "call succeeded: %v", res.Value)
	require.Equal(t, code, res.Error)
	require.Nil(t, res.Value)
}

func drugInfo(t testing.TB, l *Ledger, id int) DrugInfo {
	t.Helper()
	info, ok := requireOK(t, l.Call(pharmacy, "get-drug-info", id)).(DrugInfo)
	require.True(t, ok)
	return info
}

func TestManufactureAndTransfer(t *testing.T) {
	l := newLedger(t)

	id := requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP20230615", 1623715200, 1686787200))
	require.Equal(t, int64(1), id)

	require.Equal(t, true, requireOK(t, l.Call(manufacturer, "transfer-drug", 1, distributor)))

	info := drugInfo(t, l, 1)
	require.Equal(t, distributor, info.CurrentOwner)
	require.Equal(t, manufacturer, info.Manufacturer)
	require.Equal(t, "Aspirin", info.Name)
	require.Equal(t, "ASP20230615", info.BatchNumber)
	require.Equal(t, int64(1623715200), info.ManufactureDate)
	require.Equal(t, int64(1686787200), info.ExpiryDate)
	require.Equal(t, "manufactured", info.CurrentStage)
	require.Len(t, info.Steps, 1)
	require.Equal(t, manufacturer, info.Steps[0].Actor)

	// The previous owner lost control over the drug.
	requireErr(t, l.Call(manufacturer, "transfer-drug", 1, pharmacy), CodeUnauthorized)
	requireErr(t, l.Call(manufacturer, "update-drug-stage", 1, "distributed"), CodeUnauthorized)
	require.Equal(t, distributor, drugInfo(t, l, 1).CurrentOwner)
}

func TestUpdateDrugStage(t *testing.T) {
	l := newLedger(t)
	requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP20230615", 1623715200, 1686787200))

	requireOK(t, l.Call(manufacturer, "update-drug-stage", 1, "distributed"))

	info := drugInfo(t, l, 1)
	require.Equal(t, "distributed", info.CurrentStage)
	require.Len(t, info.Steps, 2)
	require.Equal(t, "distributed", info.Steps[1].Stage)
	require.Equal(t, manufacturer, info.Steps[1].Actor)
	require.True(t, info.Steps[0].Timestamp <= info.Steps[1].Timestamp)
}

func TestUnverifiedParticipantCannotRecordStep(t *testing.T) {
	l := newLedger(t)
	requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP20230615", 1623715200, 1686787200))
	requireOK(t, l.Call(distributor, "register-participant", "Unverified Corp", "distributor"))

	requireErr(t, l.Call(distributor, "record-supply-chain-step", 1, "distributed"), CodeUnauthorized)

	// An unverified caller is rejected before the drug is looked up.
	requireErr(t, l.Call(distributor, "record-supply-chain-step", 999, "distributed"), CodeUnauthorized)

	info := drugInfo(t, l, 1)
	require.Equal(t, "manufactured", info.CurrentStage)
	require.Len(t, info.Steps, 1)
}

func TestVerifiedParticipantRecordsStep(t *testing.T) {
	l := newLedger(t)
	requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP20230615", 1623715200, 1686787200))
	requireOK(t, l.Call(distributor, "register-participant", "Distribution Ltd", "distributor"))

	// Only the registry authority can verify.
	requireErr(t, l.Call(distributor, "verify-participant", distributor), CodeUnauthorized)
	requireOK(t, l.Call(deployer, "verify-participant", distributor))

	requireOK(t, l.Call(distributor, "record-supply-chain-step", 1, "distributed"))
	info := drugInfo(t, l, 1)
	require.Equal(t, "distributed", info.CurrentStage)
	require.Equal(t, distributor, info.Steps[1].Actor)
	// Recording a step does not change the owner.
	require.Equal(t, manufacturer, info.CurrentOwner)

	requireErr(t, l.Call(distributor, "record-supply-chain-step", 2, "distributed"), CodeNotFound)

	// Revocation takes effect immediately.
	requireOK(t, l.Call(deployer, "revoke-participant", distributor))
	requireErr(t, l.Call(distributor, "record-supply-chain-step", 1, "dispensed"), CodeUnauthorized)
	require.Equal(t, "distributed", drugInfo(t, l, 1).CurrentStage)
}

func TestParticipantRegistry(t *testing.T) {
	l := newLedger(t)

	requireErr(t, l.Call(pharmacy, "get-participant-info", pharmacy), CodeNotFound)
	requireErr(t, l.Call(deployer, "verify-participant", pharmacy), CodeNotFound)

	requireOK(t, l.Call(pharmacy, "register-participant", "Corner Pharmacy", "pharmacy"))
	requireErr(t, l.Call(pharmacy, "register-participant", "Corner Pharmacy", "pharmacy"), CodeAlreadyRegistered)
	requireErr(t, l.Call(distributor, "register-participant", "Wholesale", "wholesaler"), CodeInvalidRole)

	info, ok := requireOK(t, l.Call(distributor, "get-participant-info", pharmacy)).(ParticipantInfo)
	require.True(t, ok)
	require.Equal(t, ParticipantInfo{
		Identity:     pharmacy,
		Name:         "Corner Pharmacy",
		Role:         "pharmacy",
		Verified:     false,
		RegisteredAt: info.RegisteredAt,
	}, info)

	// Verification is idempotent.
	requireOK(t, l.Call(deployer, "verify-participant", pharmacy))
	requireOK(t, l.Call(deployer, "verify-participant", pharmacy))
	info = requireOK(t, l.Call(distributor, "get-participant-info", pharmacy)).(ParticipantInfo)
	require.True(t, info.Verified)
	require.Equal(t, deployer, info.VerifiedBy)

	requireOK(t, l.Call(deployer, "revoke-participant", pharmacy))
	info = requireOK(t, l.Call(distributor, "get-participant-info", pharmacy)).(ParticipantInfo)
	require.False(t, info.Verified)
}

func TestVerifiedRegulatorCanVerify(t *testing.T) {
	const regulator = "ST3REGULATOR"
	l := newLedger(t)
	requireOK(t, l.Call(regulator, "register-participant", "Drug Agency", "regulator"))
	requireOK(t, l.Call(pharmacy, "register-participant", "Corner Pharmacy", "pharmacy"))

	requireErr(t, l.Call(regulator, "verify-participant", pharmacy), CodeUnauthorized)
	requireOK(t, l.Call(deployer, "verify-participant", regulator))
	requireOK(t, l.Call(regulator, "verify-participant", pharmacy))
}

func TestInvalidDatesConsumeNoID(t *testing.T) {
	l := newLedger(t)

	requireErr(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", 1686787200, 1623715200), CodeInvalidDates)
	requireErr(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", 1623715200, 1623715200), CodeInvalidDates)
	requireErr(t, l.Call(pharmacy, "get-drug-info", 1), CodeNotFound)

	require.Equal(t, int64(1), requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", 1623715200, 1686787200)))
	require.Equal(t, int64(2), requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", 1623715200, 1686787200)))
}

func TestInvalidStage(t *testing.T) {
	l := newLedger(t)
	requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP20230615", 1623715200, 1686787200))

	requireErr(t, l.Call(manufacturer, "update-drug-stage", 1, "in-transit"), CodeInvalidStage)
	requireErr(t, l.Call(manufacturer, "update-drug-stage", 1, "manufactured"), CodeInvalidStage)
	requireErr(t, l.Call(manufacturer, "update-drug-stage", 7, "distributed"), CodeNotFound)

	info := drugInfo(t, l, 1)
	require.Equal(t, "manufactured", info.CurrentStage)
	require.Len(t, info.Steps, 1)
}

func TestCallInput(t *testing.T) {
	l := newLedger(t)

	requireErr(t, l.Call(manufacturer, "destroy-everything"), CodeUnknownOperation)
	requireErr(t, l.Call(manufacturer, "manufacture-drug", "Aspirin"), CodeInvalidInput)
	requireErr(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", "yesterday", 1686787200), CodeInvalidInput)
	requireErr(t, l.Call(manufacturer, "manufacture-drug", "", "ASP1", 1623715200, 1686787200), CodeInvalidInput)
	requireErr(t, l.Call("", "manufacture-drug", "Aspirin", "ASP1", 1623715200, 1686787200), CodeUnauthorized)
	requireErr(t, l.Call(pharmacy, "get-drug-info", 1.5), CodeInvalidInput)

	// A whole number decoded from JSON is a valid identifier.
	requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", 1623715200, 1686787200))
	require.Equal(t, int64(1), drugInfo(t, l, 1).DrugID)
	_, ok := requireOK(t, l.Call(pharmacy, "get-drug-info", float64(1))).(DrugInfo)
	require.True(t, ok)
}

func TestBlockTimeMustNotGoBack(t *testing.T) {
	times := []time.Time{
		time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC),
		time.Date(2023, 6, 15, 11, 0, 0, 0, time.UTC),
	}
	l, err := NewLedger(deployer, WithClock(func() time.Time {
		now := times[0]
		if len(times) > 1 {
			times = times[1:]
		}
		return now
	}))
	require.NoError(t, err)

	requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", 1623715200, 1686787200))
	requireErr(t, l.Call(manufacturer, "update-drug-stage", 1, "distributed"), CodeInvalidInput)
	require.Equal(t, "manufactured", drugInfo(t, l, 1).CurrentStage)
}

func TestOperations(t *testing.T) {
	ops := Operations()
	require.Len(t, ops, 9)
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	require.Equal(t, []string{
		"get-drug-info",
		"get-participant-info",
		"manufacture-drug",
		"record-supply-chain-step",
		"register-participant",
		"revoke-participant",
		"transfer-drug",
		"update-drug-stage",
		"verify-participant",
	}, names)
}

func TestNewLedgerRequiresDeployer(t *testing.T) {
	_, err := NewLedger("")
	require.Error(t, err)
}

func TestReadWithoutCaller(t *testing.T) {
	l := newLedger(t)
	requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", 1623715200, 1686787200))
	_, ok := requireOK(t, l.Call("", "get-drug-info", 1)).(DrugInfo)
	require.True(t, ok)
	requireErr(t, l.Call("", "get-participant-info", pharmacy), CodeNotFound)
}

func TestEmptyPrincipalArgument(t *testing.T) {
	l := newLedger(t)
	requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", 1623715200, 1686787200))

	requireErr(t, l.Call(manufacturer, "transfer-drug", 1, ""), CodeInvalidInput)
	require.Equal(t, manufacturer, drugInfo(t, l, 1).CurrentOwner)
	// The owner keeps control of the drug.
	requireOK(t, l.Call(manufacturer, "update-drug-stage", 1, "distributed"))

	requireErr(t, l.Call(deployer, "verify-participant", ""), CodeInvalidInput)
	requireErr(t, l.Call(deployer, "revoke-participant", ""), CodeInvalidInput)
	requireErr(t, l.Call(pharmacy, "get-participant-info", ""), CodeInvalidInput)
}

func TestDirectoryRecordsOnlyCommittedPrincipals(t *testing.T) {
	l := newLedger(t)
	require.Equal(t, 1, l.dir.size())

	// Reads never record a principal.
	for i := 0; i < 10; i++ {
		requireErr(t, l.Call(fmt.Sprintf("reader-%d", i), "get-participant-info", fmt.Sprintf("unknown-%d", i)), CodeNotFound)
		requireErr(t, l.Call(fmt.Sprintf("reader-%d", i), "get-drug-info", 42), CodeNotFound)
	}
	require.Equal(t, 1, l.dir.size())

	// Neither do failed writes.
	requireErr(t, l.Call(pharmacy, "transfer-drug", 1, "nobody"), CodeNotFound)
	requireErr(t, l.Call(pharmacy, "verify-participant", distributor), CodeUnauthorized)
	require.Equal(t, 1, l.dir.size())

	requireOK(t, l.Call(manufacturer, "manufacture-drug", "Aspirin", "ASP1", 1623715200, 1686787200))
	requireOK(t, l.Call(manufacturer, "transfer-drug", 1, distributor))
	require.Equal(t, 3, l.dir.size())

	info := drugInfo(t, l, 1)
	require.Equal(t, manufacturer, info.Manufacturer)
	require.Equal(t, distributor, info.CurrentOwner)
}
