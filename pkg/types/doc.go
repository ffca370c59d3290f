/*
Package types defines the data model shared by the agent's workflows.

A Tenant is one local OS user that owns a topio installation directory and
one or more ManagedAccounts. The agent keeps a map of tenants keyed by id
and every workflow cycle operates on exactly one of them.

# Units

The node reports rewards in micro-units while operators configure claim
thresholds in whole units. MicroUnitsPerUnit is the single conversion factor
used for every comparison; Tenant.ClaimThresholdMicro applies it. Balances
returned by the wallet are whole units and SweepReserve is expressed in the
same unit.

# Status Types

ProcessStatus and JoinStatus are small string enums produced by the gateway
after parsing node output. ProcessNeedsReset is never expected in normal
operation; it means more than one node process was found and an operator
should intervene.
*/
package types
