/*
Package participant implements a registry of supply chain participants.

Any address can register itself as a participant, declaring a name and a
role. A freshly registered participant is not verified. Verification is
granted and revoked by the registry authority: the configuration owner or an
already verified participant with the regulator role.

Other extensions use the Registry to authorize operations that only verified
participants may perform.
*/
package participant
