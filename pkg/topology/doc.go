// Package topology defines the declared desired state of a deployment:
// services, storage claims, secrets, config maps and service accounts, plus
// the overlays that adjust a base topology for a specific environment.
package topology
