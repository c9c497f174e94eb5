// Package registry holds the site registry collaborator: the lookups that map a
// site key to its current content identifier, redirect rules, contract and
// plan, plus the custom-domain table used by the domain resolver.
// Three stores are provided. The static store is built from config at startup;
// the redis and leveldb stores share one key layout (see keys.go) so a registry
// can be moved between them with the -seed flag. The gateway only reads.
package registry
