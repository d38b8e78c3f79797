package transport

import (
	"github.com/sheepgate/gateway/internal/cluster"
	"github.com/sheepgate/gateway/internal/wire"
)

// ExecSync performs one synchronous request/response round trip against
// nid: acquire a pooled connection, send the request, read the
// response, then return the connection to the pool on success or evict
// it on failure. This is sheep_exec_req from the source (spec §6),
// used by the read path's remote scan (spec §4.E step 4) where a single
// blocking round trip is simpler and sufficient — no fan-out, no
// waiter.
func ExecSync(pool *Pool, membership *cluster.Membership, nid cluster.NodeID, req wire.Request) (wire.Response, error) {
	conn, err := pool.Get(nid)
	if err != nil {
		return wire.Response{}, err
	}

	needRetry := func(epoch uint32) bool { return membership.NeedRetry(epoch) }

	if err := SendRequest(conn, req.Header, req.Payload, req.Header.Epoch, needRetry); err != nil {
		pool.Del(nid, conn)
		return wire.Response{}, err
	}

	resp, err := ReadResponse(conn, req.Header.Epoch, needRetry)
	if err != nil {
		pool.Del(nid, conn)
		return wire.Response{}, err
	}

	pool.Put(nid, conn)
	return resp, nil
}
