// Package types defines the shared data model of doghair: peer
// identities, the collector sampling configuration, pull-cycle records,
// and the coordinator status report.
//
// The package has no dependencies on other doghair packages so every
// component can exchange these values freely.
package types
