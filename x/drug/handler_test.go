package drug

import (
	"context"
	"testing"

	"github.com/iov-one/drugchain/x/participant"
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestUseCases(t *testing.T) {
	type Request struct {
		Now         weave.UnixTime
		Conditions  []weave.Condition
		Tx          weave.Tx
		BlockHeight int64
		WantErr     *errors.Error
	}

	var (
		makerCond       = weavetest.NewCondition()
		distributorCond = weavetest.NewCondition()
		pharmacyCond    = weavetest.NewCondition()
		strangerCond    = weavetest.NewCondition()

		now = weave.UnixTime(1623715200)
	)

	manufacture := func(name, batch string, made, expires weave.UnixTime) weave.Tx {
		return &weavetest.Tx{
			Msg: &ManufactureDrugMsg{
				Metadata:       &weave.Metadata{Schema: 1},
				Name:           name,
				BatchNumber:    batch,
				ManufacturedAt: made,
				ExpiresAt:      expires,
			},
		}
	}
	transfer := func(id uint64, to weave.Address) weave.Tx {
		return &weavetest.Tx{
			Msg: &TransferDrugMsg{
				Metadata: &weave.Metadata{Schema: 1},
				DrugID:   weavetest.SequenceID(id),
				NewOwner: to,
			},
		}
	}
	updateStage := func(id uint64, s Stage) weave.Tx {
		return &weavetest.Tx{
			Msg: &UpdateDrugStageMsg{
				Metadata: &weave.Metadata{Schema: 1},
				DrugID:   weavetest.SequenceID(id),
				Stage:    s,
			},
		}
	}
	recordStep := func(id uint64, s Stage) weave.Tx {
		return &weavetest.Tx{
			Msg: &RecordSupplyChainStepMsg{
				Metadata: &weave.Metadata{Schema: 1},
				DrugID:   weavetest.SequenceID(id),
				Stage:    s,
			},
		}
	}

	aspirin := manufacture("Aspirin", "ASP20230615", 1623715200, 1686787200)

	cases := map[string]struct {
		Requests  []Request
		AfterTest func(t *testing.T, db weave.KVStore)
	}{
		"manufactured drug is owned by its manufacturer": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				d, err := Get(db, weavetest.SequenceID(1))
				if err != nil {
					t.Fatalf("cannot get drug: %s", err)
				}
				assert.Equal(t, "Aspirin", d.Name)
				assert.Equal(t, "ASP20230615", d.BatchNumber)
				assert.Equal(t, makerCond.Address(), d.Owner)
				assert.Equal(t, makerCond.Address(), d.Manufacturer)
				assert.Equal(t, StageManufactured, d.Stage)
				assert.Equal(t, []Step{
					{Actor: makerCond.Address(), Stage: StageManufactured, RecordedAt: now},
				}, d.Steps)
			},
		},
		"drug IDs are sequential": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{strangerCond},
					Tx:          manufacture("Ibuprofen", "IBU-1", 10, 20),
					BlockHeight: 2,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				d, err := Get(db, weavetest.SequenceID(2))
				if err != nil {
					t.Fatalf("cannot get drug: %s", err)
				}
				assert.Equal(t, "Ibuprofen", d.Name)
				assert.Equal(t, strangerCond.Address(), d.Owner)
			},
		},
		"invalid dates do not consume an ID": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          manufacture("Aspirin", "ASP", 1686787200, 1623715200),
					BlockHeight: 1,
					WantErr:     ErrInvalidDates,
				},
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          manufacture("Aspirin", "ASP", 1623715200, 1623715200),
					BlockHeight: 2,
					WantErr:     ErrInvalidDates,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 3,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				if _, err := Get(db, weavetest.SequenceID(1)); err != nil {
					t.Fatalf("first valid drug must get the first ID: %s", err)
				}
				if _, err := Get(db, weavetest.SequenceID(2)); !errors.ErrNotFound.Is(err) {
					t.Fatalf("unexpected error: %+v", err)
				}
			},
		},
		"owner can transfer": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{makerCond},
					Tx:          transfer(1, distributorCond.Address()),
					BlockHeight: 2,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				d, err := Get(db, weavetest.SequenceID(1))
				if err != nil {
					t.Fatalf("cannot get drug: %s", err)
				}
				assert.Equal(t, distributorCond.Address(), d.Owner)
				assert.Equal(t, makerCond.Address(), d.Manufacturer)
				// A transfer is not a stage change.
				assert.Equal(t, 1, len(d.Steps))
				assert.Equal(t, StageManufactured, d.Stage)
			},
		},
		"only the owner can transfer": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{makerCond},
					Tx:          transfer(1, distributorCond.Address()),
					BlockHeight: 2,
				},
				{
					Now:         now + 2,
					Conditions:  []weave.Condition{makerCond},
					Tx:          transfer(1, pharmacyCond.Address()),
					BlockHeight: 3,
					WantErr:     errors.ErrUnauthorized,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				d, err := Get(db, weavetest.SequenceID(1))
				if err != nil {
					t.Fatalf("cannot get drug: %s", err)
				}
				assert.Equal(t, distributorCond.Address(), d.Owner)
			},
		},
		"transfer of unknown drug": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          transfer(7, distributorCond.Address()),
					BlockHeight: 1,
					WantErr:     errors.ErrNotFound,
				},
			},
		},
		"owner can update the stage": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
				{
					Now:         now + 10,
					Conditions:  []weave.Condition{makerCond},
					Tx:          updateStage(1, StageDistributed),
					BlockHeight: 2,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				d, err := Get(db, weavetest.SequenceID(1))
				if err != nil {
					t.Fatalf("cannot get drug: %s", err)
				}
				assert.Equal(t, StageDistributed, d.Stage)
				assert.Equal(t, []Step{
					{Actor: makerCond.Address(), Stage: StageManufactured, RecordedAt: now},
					{Actor: makerCond.Address(), Stage: StageDistributed, RecordedAt: now + 10},
				}, d.Steps)
			},
		},
		"stranger cannot update the stage": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{strangerCond},
					Tx:          updateStage(1, StageRecalled),
					BlockHeight: 2,
					WantErr:     errors.ErrUnauthorized,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				d, err := Get(db, weavetest.SequenceID(1))
				if err != nil {
					t.Fatalf("cannot get drug: %s", err)
				}
				assert.Equal(t, StageManufactured, d.Stage)
			},
		},
		"update stage of unknown drug is not found before unauthorized": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{strangerCond},
					Tx:          updateStage(3, StageDispensed),
					BlockHeight: 1,
					WantErr:     errors.ErrNotFound,
				},
			},
		},
		"manufactured stage cannot be set again": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{makerCond},
					Tx:          updateStage(1, StageManufactured),
					BlockHeight: 2,
					WantErr:     ErrInvalidStage,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{makerCond},
					Tx:          updateStage(1, Stage(99)),
					BlockHeight: 3,
					WantErr:     ErrInvalidStage,
				},
			},
		},
		"verified participant can record a step": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
				{
					Now:         now + 3,
					Conditions:  []weave.Condition{distributorCond},
					Tx:          recordStep(1, StageDistributed),
					BlockHeight: 2,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				d, err := Get(db, weavetest.SequenceID(1))
				if err != nil {
					t.Fatalf("cannot get drug: %s", err)
				}
				assert.Equal(t, StageDistributed, d.Stage)
				// Recording a step does not change the ownership.
				assert.Equal(t, makerCond.Address(), d.Owner)
				assert.Equal(t, distributorCond.Address(), d.Steps[1].Actor)
			},
		},
		"unverified participant cannot record a step": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
				{
					Now:         now + 3,
					Conditions:  []weave.Condition{pharmacyCond},
					Tx:          recordStep(1, StageDistributed),
					BlockHeight: 2,
					WantErr:     errors.ErrUnauthorized,
				},
				{
					// Owning the drug does not make one a verified participant.
					Now:         now + 4,
					Conditions:  []weave.Condition{makerCond},
					Tx:          recordStep(1, StageDistributed),
					BlockHeight: 3,
					WantErr:     errors.ErrUnauthorized,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				d, err := Get(db, weavetest.SequenceID(1))
				if err != nil {
					t.Fatalf("cannot get drug: %s", err)
				}
				assert.Equal(t, StageManufactured, d.Stage)
				assert.Equal(t, 1, len(d.Steps))
			},
		},
		"unverified participant is unauthorized even for unknown drug": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{pharmacyCond},
					Tx:          recordStep(1, StageDistributed),
					BlockHeight: 1,
					WantErr:     errors.ErrUnauthorized,
				},
			},
		},
		"verified participant gets not found for unknown drug": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{distributorCond},
					Tx:          recordStep(1, StageDistributed),
					BlockHeight: 1,
					WantErr:     errors.ErrNotFound,
				},
			},
		},
		"step cannot be recorded in the past": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{makerCond},
					Tx:          aspirin,
					BlockHeight: 1,
				},
				{
					Now:         now - 1,
					Conditions:  []weave.Condition{distributorCond},
					Tx:          recordStep(1, StageRecalled),
					BlockHeight: 2,
					WantErr:     errors.ErrState,
				},
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			migration.MustInitPkg(db, "drug", "participant")

			rt := app.NewRouter()
			auth := &weavetest.CtxAuth{Key: "auth"}
			RegisterRoutes(rt, auth, participant.NewRegistry())

			verified := participant.Participant{
				Metadata:     &weave.Metadata{Schema: 1},
				Address:      distributorCond.Address(),
				Name:         "MedDistributor",
				Role:         participant.RoleDistributor,
				Verified:     true,
				RegisteredAt: now - 100,
				VerifiedBy:   weavetest.NewCondition().Address(),
				VerifiedAt:   now - 50,
			}
			if _, err := participant.NewParticipantBucket().Put(db, verified.Address, &verified); err != nil {
				t.Fatalf("cannot register verified participant: %s", err)
			}
			unverified := participant.Participant{
				Metadata:     &weave.Metadata{Schema: 1},
				Address:      pharmacyCond.Address(),
				Name:         "Unverified Corp",
				Role:         participant.RolePharmacy,
				RegisteredAt: now - 100,
			}
			if _, err := participant.NewParticipantBucket().Put(db, unverified.Address, &unverified); err != nil {
				t.Fatalf("cannot register unverified participant: %s", err)
			}

			for i, req := range tc.Requests {
				ctx := weave.WithHeight(context.Background(), req.BlockHeight)
				ctx = weave.WithChainID(ctx, "testchain-123")
				ctx = auth.SetConditions(ctx, req.Conditions...)
				ctx = weave.WithBlockTime(ctx, req.Now.Time())

				cache := db.CacheWrap()
				if _, err := rt.Check(ctx, cache, req.Tx); !req.WantErr.Is(err) {
					t.Fatalf("check %d: unexpected error: %+v", i, err)
				}
				cache.Discard()
				if _, err := rt.Deliver(ctx, db, req.Tx); !req.WantErr.Is(err) {
					t.Fatalf("deliver %d: unexpected error: %+v", i, err)
				}
			}

			if tc.AfterTest != nil {
				tc.AfterTest(t, db)
			}
		})
	}
}

func TestQueryByBatch(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drug")

	bucket := NewDrugBucket()
	maker := weavetest.NewCondition().Address()
	other := weavetest.NewCondition().Address()
	for i, m := range []weave.Address{maker, other, maker} {
		batch := "B-1"
		if i == 2 {
			batch = "B-2"
		}
		d := Drug{
			Metadata:       &weave.Metadata{Schema: 1},
			Name:           "Aspirin",
			BatchNumber:    batch,
			ManufacturedAt: 1,
			ExpiresAt:      2,
			Manufacturer:   m,
			Owner:          m,
			Stage:          StageManufactured,
			Steps:          []Step{{Actor: m, Stage: StageManufactured, RecordedAt: 1}},
		}
		if _, err := bucket.Put(db, nil, &d); err != nil {
			t.Fatalf("cannot store %d drug: %s", i, err)
		}
	}

	drugs, err := ByBatch(db, "B-1")
	if err != nil {
		t.Fatalf("cannot query: %s", err)
	}
	// The same batch number can be used by different manufacturers.
	assert.Equal(t, 2, len(drugs))

	var own []*Drug
	if _, err := bucket.ByIndex(db, "owner", maker, &own); err != nil {
		t.Fatalf("cannot query by owner: %s", err)
	}
	assert.Equal(t, 2, len(own))
}
