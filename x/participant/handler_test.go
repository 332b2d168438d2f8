package participant

import (
	"context"
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
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
		ownerCond     = weavetest.NewCondition()
		aliceCond     = weavetest.NewCondition()
		bobCond       = weavetest.NewCondition()
		regulatorCond = weavetest.NewCondition()

		now = weave.UnixTime(1623715200)
	)

	register := func(name string, role Role) weave.Tx {
		return &weavetest.Tx{
			Msg: &RegisterParticipantMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Name:     name,
				Role:     role,
			},
		}
	}
	verify := func(a weave.Address) weave.Tx {
		return &weavetest.Tx{
			Msg: &VerifyParticipantMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Address:  a,
			},
		}
	}
	revoke := func(a weave.Address) weave.Tx {
		return &weavetest.Tx{
			Msg: &RevokeParticipantMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Address:  a,
			},
		}
	}

	cases := map[string]struct {
		Requests  []Request
		AfterTest func(t *testing.T, db weave.KVStore)
	}{
		"registered participant is not verified": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("Unverified Corp", RoleDistributor),
					BlockHeight: 1,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				r := NewRegistry()
				p, err := r.Participant(db, aliceCond.Address())
				if err != nil {
					t.Fatalf("cannot get participant: %s", err)
				}
				assert.Equal(t, "Unverified Corp", p.Name)
				assert.Equal(t, RoleDistributor, p.Role)
				assert.Equal(t, false, p.Verified)
				assert.Equal(t, now, p.RegisteredAt)
				assert.Equal(t, false, r.IsVerified(db, aliceCond.Address()))
			},
		},
		"participant cannot register twice": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("PharmaCorp", RoleManufacturer),
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("PharmaCorp Again", RolePharmacy),
					BlockHeight: 2,
					WantErr:     errors.ErrDuplicate,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				p, err := NewRegistry().Participant(db, aliceCond.Address())
				if err != nil {
					t.Fatalf("cannot get participant: %s", err)
				}
				assert.Equal(t, "PharmaCorp", p.Name)
				assert.Equal(t, RoleManufacturer, p.Role)
			},
		},
		"name must match the configuration rule": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("x", RoleOther),
					BlockHeight: 1,
					WantErr:     errors.ErrInput,
				},
			},
		},
		"role must be a known role": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("PharmaCorp", Role(42)),
					BlockHeight: 1,
					WantErr:     ErrInvalidRole,
				},
			},
		},
		"configuration owner can verify a participant": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("PharmaCorp", RoleManufacturer),
					BlockHeight: 1,
				},
				{
					Now:         now + 5,
					Conditions:  []weave.Condition{ownerCond},
					Tx:          verify(aliceCond.Address()),
					BlockHeight: 2,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				r := NewRegistry()
				p, err := r.Participant(db, aliceCond.Address())
				if err != nil {
					t.Fatalf("cannot get participant: %s", err)
				}
				assert.Equal(t, true, p.Verified)
				assert.Equal(t, ownerCond.Address(), p.VerifiedBy)
				assert.Equal(t, now+5, p.VerifiedAt)
				assert.Equal(t, true, r.IsVerified(db, aliceCond.Address()))
			},
		},
		"verification is idempotent": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("PharmaCorp", RoleManufacturer),
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{ownerCond},
					Tx:          verify(aliceCond.Address()),
					BlockHeight: 2,
				},
				{
					Now:         now + 2,
					Conditions:  []weave.Condition{ownerCond},
					Tx:          verify(aliceCond.Address()),
					BlockHeight: 3,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				p, err := NewRegistry().Participant(db, aliceCond.Address())
				if err != nil {
					t.Fatalf("cannot get participant: %s", err)
				}
				assert.Equal(t, true, p.Verified)
				// The second call did not change anything.
				assert.Equal(t, now+1, p.VerifiedAt)
			},
		},
		"unknown participant cannot be verified": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{ownerCond},
					Tx:          verify(bobCond.Address()),
					BlockHeight: 1,
					WantErr:     errors.ErrNotFound,
				},
			},
		},
		"participant cannot verify itself": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("PharmaCorp", RoleManufacturer),
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          verify(aliceCond.Address()),
					BlockHeight: 2,
					WantErr:     errors.ErrUnauthorized,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				assert.Equal(t, false, NewRegistry().IsVerified(db, aliceCond.Address()))
			},
		},
		"unverified regulator cannot verify": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{regulatorCond},
					Tx:          register("Drug Agency", RoleRegulator),
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("PharmaCorp", RoleManufacturer),
					BlockHeight: 2,
				},
				{
					Now:         now + 2,
					Conditions:  []weave.Condition{regulatorCond},
					Tx:          verify(aliceCond.Address()),
					BlockHeight: 3,
					WantErr:     errors.ErrUnauthorized,
				},
			},
		},
		"verified regulator can verify and revoke": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{regulatorCond},
					Tx:          register("Drug Agency", RoleRegulator),
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{ownerCond},
					Tx:          verify(regulatorCond.Address()),
					BlockHeight: 2,
				},
				{
					Now:         now + 2,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("PharmaCorp", RoleManufacturer),
					BlockHeight: 3,
				},
				{
					Now:         now + 3,
					Conditions:  []weave.Condition{regulatorCond},
					Tx:          verify(aliceCond.Address()),
					BlockHeight: 4,
				},
				{
					Now:         now + 4,
					Conditions:  []weave.Condition{regulatorCond},
					Tx:          revoke(aliceCond.Address()),
					BlockHeight: 5,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				r := NewRegistry()
				p, err := r.Participant(db, aliceCond.Address())
				if err != nil {
					t.Fatalf("cannot get participant: %s", err)
				}
				assert.Equal(t, false, p.Verified)
				assert.Equal(t, regulatorCond.Address(), p.VerifiedBy)
				assert.Equal(t, now+4, p.VerifiedAt)

				regulators, err := r.ByRole(db, RoleRegulator)
				if err != nil {
					t.Fatalf("cannot list regulators: %s", err)
				}
				assert.Equal(t, 1, len(regulators))
				assert.Equal(t, regulatorCond.Address(), regulators[0].Address)
			},
		},
		"revoke requires authority": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("PharmaCorp", RoleManufacturer),
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{ownerCond},
					Tx:          verify(aliceCond.Address()),
					BlockHeight: 2,
				},
				{
					Now:         now + 2,
					Conditions:  []weave.Condition{bobCond},
					Tx:          revoke(aliceCond.Address()),
					BlockHeight: 3,
					WantErr:     errors.ErrUnauthorized,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				assert.Equal(t, true, NewRegistry().IsVerified(db, aliceCond.Address()))
			},
		},
		"revoke of unknown participant": {
			Requests: []Request{
				{
					Now:         now,
					Conditions:  []weave.Condition{ownerCond},
					Tx:          revoke(bobCond.Address()),
					BlockHeight: 1,
					WantErr:     errors.ErrNotFound,
				},
			},
		},
		"configuration owner can update the configuration": {
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{ownerCond},
					Tx: &weavetest.Tx{
						Msg: &UpdateConfigurationMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Patch: &Configuration{
								Metadata:  &weave.Metadata{Schema: 1},
								Owner:     ownerCond.Address(),
								ValidName: "^x$",
							},
						},
					},
					BlockHeight: 1,
				},
				{
					Now:         now + 1,
					Conditions:  []weave.Condition{aliceCond},
					Tx:          register("x", RoleOther),
					BlockHeight: 2,
				},
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			migration.MustInitPkg(db, "participant")

			rt := app.NewRouter()
			auth := &weavetest.CtxAuth{Key: "auth"}
			RegisterRoutes(rt, auth)

			config := Configuration{
				Metadata:  &weave.Metadata{Schema: 1},
				Owner:     ownerCond.Address(),
				ValidName: "^[A-Za-z0-9 .,&'-]{2,64}$",
			}
			if err := gconf.Save(db, "participant", &config); err != nil {
				t.Fatalf("cannot save configuration: %s", err)
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

func TestRoleNames(t *testing.T) {
	for r := range roleNames {
		got, err := ParseRole(r.Name())
		if err != nil {
			t.Fatalf("cannot parse %q: %s", r.Name(), err)
		}
		assert.Equal(t, r, got)
	}

	if _, err := ParseRole("wholesaler"); !ErrInvalidRole.Is(err) {
		t.Fatalf("unexpected error: %+v", err)
	}
	if _, err := ParseRole("Regulator"); !ErrInvalidRole.Is(err) {
		t.Fatalf("role names must be case sensitive: %+v", err)
	}
	if err := RoleInvalid.Validate(); !ErrInvalidRole.Is(err) {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func TestParticipantBucket(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "participant")

	addr := weavetest.NewCondition().Address()
	p := Participant{
		Metadata:     &weave.Metadata{Schema: 1},
		Address:      addr,
		Name:         "Corner Pharmacy",
		Role:         RolePharmacy,
		RegisteredAt: 1623715200,
	}
	if _, err := NewParticipantBucket().Put(db, addr, &p); err != nil {
		t.Fatalf("cannot store participant: %s", err)
	}

	got, err := NewRegistry().Participant(db, addr)
	if err != nil {
		t.Fatalf("cannot load participant: %s", err)
	}
	assert.Equal(t, "Corner Pharmacy", got.Name)
}
