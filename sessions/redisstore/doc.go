// Package redisstore provides a Redis backed sessions.Store.
//
// Records are stored as JSON strings under "<prefix>rec:<id>" with a sliding
// TTL that is refreshed on every write. Outbound frame logs live in a Redis
// Stream under "<prefix>stream:<id>" so event ids are the stream entry ids and
// replay is a single XRANGE.
//
// Example:
//
//	store, err := redisstore.NewFromEnv()
//	if err != nil { return err }
//	defer store.Close()
//	sess := mcpsession.New(transport, mcpsession.WithStore(store))
package redisstore
