// Package core contains the result-notification contract, its value types,
// and the delivery machinery that guarantees exactly-once terminal outcomes
// for authentication attempts and publishing sessions. Adapters and stores
// depend on this package; core must not depend on them.
package core
