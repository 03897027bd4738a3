// Package redisstream connects Redis Streams to webstreams.
//
// NewSource reads entries of a Redis stream with XREAD BLOCK. Each pull
// reads one batch, so a slow consumer leaves entries in Redis instead of in
// memory. NewSink appends every chunk with XADD, optionally trimming the
// stream with MAXLEN ~.
//
// Limiter is a fixed-window rate limiter shared by every process using the
// same key. It implements transforms.Waiter, so it can pace a pipeline
// across instances:
//
//	limiter, _ := redisstream.NewLimiter(client, "ingest", 100, time.Second)
//	paced := transforms.ThrottleWith[redisstream.Message](limiter)
//
// Redis is reached through redis.UniversalClient, so single node, sentinel
// and cluster clients all work.
package redisstream
