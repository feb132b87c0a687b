// Package catalog keeps the registry of databases served by a dvkv server.
//
// A database registration (DatabaseInfo) has a unique name, a root directory,
// a fixed partition count and an enabled flag. Registrations are persisted as JSON
// in a goleveldb catalog under <data-dir>/catalog and survive restarts. Databases
// passed at startup are registered if they are not known yet.
//
// Lifecycle:
//
//	Create -> (Enable | Disable)* -> Drop
//
// Create rejects empty names, negative partition counts and duplicates. Disable only
// blocks new sessions from binding the database. Drop closes the engine and deletes
// the registration together with the root directory.
//
// Cluster topologies (cluster name -> ordered shard URIs, at least 2) are handed in
// at startup and are read-only. The server only depends on the IRegistry view
// (GetDatabase, GetClusterTopology) to resolve the use command.
//
// Open lazily creates one lstore.Engine per database and shares it between all
// sessions.
package catalog
