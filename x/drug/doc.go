/*
Package drug implements tracking of drugs along the supply chain.

Each drug is created by its manufacturer and receives a sequential ID. The
record keeps the current owner, the current stage and the append only
history of every stage change.

Only the owner can transfer a drug or update its stage. Any verified supply
chain participant can record a supply chain step, independently of who owns
the drug. Verification status is provided by a Verifier, usually the
participant registry.
*/
package drug
