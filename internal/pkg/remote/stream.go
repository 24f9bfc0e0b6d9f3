package remote

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/pkg/errors"

	"ledger-mirror/internal/pkg/config"
	solanaUtil "ledger-mirror/internal/pkg/util/solana"
)

const streamBufferPerKey = 16

// Streamer opens one websocket connection per key set and multiplexes the
// per-account subscriptions into a single AccountStream.
type Streamer struct {
	url        string
	commitment rpc.CommitmentType
}

func NewStreamer(cfg config.RPCConfig) *Streamer {
	return &Streamer{
		url:        cfg.WsEndpoint,
		commitment: rpc.CommitmentType(cfg.Commitment),
	}
}

type wsStream struct {
	client    *ws.Client
	subs      []*ws.AccountSubscription
	updates   chan AccountUpdate
	errs      chan error
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (s *Streamer) SubscribeAccounts(ctx context.Context, keys []solana.PublicKey) (AccountStream, error) {
	if s.url == "" {
		return nil, errors.New("no websocket endpoint")
	}

	client, err := ws.Connect(ctx, s.url)
	if err != nil {
		return nil, errors.Wrapf(err, "ws.Connect %s", s.url)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	st := &wsStream{
		client:  client,
		updates: make(chan AccountUpdate, streamBufferPerKey*len(keys)),
		errs:    make(chan error, 1),
		cancel:  cancel,
	}

	for _, key := range keys {
		sub, err := client.AccountSubscribeWithOpts(key, s.commitment, solana.EncodingBase64)
		if err != nil {
			st.Close()
			return nil, errors.Wrapf(err, "%s %s", solanaUtil.AccountSubscribe, key)
		}
		st.subs = append(st.subs, sub)
	}

	for i, sub := range st.subs {
		st.wg.Add(1)
		go st.forward(streamCtx, keys[i], sub)
	}

	return st, nil
}

func (st *wsStream) forward(ctx context.Context, key solana.PublicKey, sub *ws.AccountSubscription) {
	defer st.wg.Done()

	for {
		res, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				select {
				case st.errs <- errors.Wrapf(err, "recv %s", key):
				default:
				}
			}
			return
		}
		if res == nil {
			continue
		}

		upd := AccountUpdate{
			Key:     key,
			Slot:    res.Context.Slot,
			Deleted: res.Value.Lamports == 0,
		}
		if res.Value.Data != nil {
			upd.Data = res.Value.Data.GetBinary()
		}

		select {
		case st.updates <- upd:
		case <-ctx.Done():
			return
		}
	}
}

func (st *wsStream) Recv(ctx context.Context) (AccountUpdate, error) {
	select {
	case <-ctx.Done():
		return AccountUpdate{}, ctx.Err()
	case err := <-st.errs:
		return AccountUpdate{}, err
	case upd := <-st.updates:
		return upd, nil
	}
}

func (st *wsStream) Close() error {
	st.closeOnce.Do(func() {
		st.cancel()
		for _, sub := range st.subs {
			sub.Unsubscribe()
		}
		st.client.Close()
		st.wg.Wait()
	})

	return nil
}
