package broker

import (
	"context"
	"sync"
	"time"

	"tradelink/pkg/broker/model"
)

// AccountFieldTable accumulates the account update stream into a key→value
// map. Writes are last-writer-wins; the table is provisional until the
// download-end event for its account arrives, after which the snapshot
// handed to the caller is consistent.
type AccountFieldTable struct {
	Account string
	Epoch   time.Time // download start

	fields sync.Map // field key -> model.AccountValue
}

func newAccountFieldTable(account string) *AccountFieldTable {
	return &AccountFieldTable{Account: account, Epoch: time.Now()}
}

func (t *AccountFieldTable) put(v model.AccountValue) {
	t.fields.Store(v.Key, v)
}

// Get returns the value recorded for the field key.
func (t *AccountFieldTable) Get(key string) (model.AccountValue, bool) {
	v, ok := t.fields.Load(key)
	if !ok {
		return model.AccountValue{}, false
	}
	return v.(model.AccountValue), true
}

// Len returns the number of distinct field keys.
func (t *AccountFieldTable) Len() int {
	n := 0
	t.fields.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Snapshot copies the table into a plain map.
func (t *AccountFieldTable) Snapshot() map[string]model.AccountValue {
	out := make(map[string]model.AccountValue)
	t.fields.Range(func(k, v any) bool {
		out[k.(string)] = v.(model.AccountValue)
		return true
	})
	return out
}

// GetAccountFields subscribes to the account update stream, accumulates it,
// and resolves with the table once the download-end marker for the account
// arrives. The subscription is released before returning.
func (c *Client) GetAccountFields(ctx context.Context, account string, opts ...CallOption) (*AccountFieldTable, error) {
	if account == "" {
		account = c.cfg.Account
	}
	id, err := c.seq.NextOrderID(ctx)
	if err != nil {
		return nil, err
	}

	table := newAccountFieldTable(account)
	cl := newCall(c.hub, id)
	// account value events are keyed by account, not request identity
	cl.onMatch(KindAccountValue, func(ev Event) bool {
		return ev.AccountValue != nil && ev.AccountValue.Account == account
	}, func(ev Event) {
		table.put(*ev.AccountValue)
	})
	cl.onMatch(KindAccountDownloadEnd, func(ev Event) bool {
		return ev.Account == account
	}, func(Event) {
		cl.resolve(table, nil)
	})
	cl.fail()

	if err := c.send(Command{Type: CmdReqAccountUpdates, ReqID: id, Account: account, Subscribe: true}); err != nil {
		cl.resolve(nil, err)
	}
	v, err := cl.wait(ctx, pickTimeout(c.cfg.CallTimeout, opts))

	// the snapshot is one-shot; stop the stream regardless of outcome
	if serr := c.send(Command{Type: CmdReqAccountUpdates, ReqID: id, Account: account, Subscribe: false}); serr != nil {
		c.log.Debugw("account update unsubscribe failed", "account", account, "err", serr)
	}

	if err != nil {
		return nil, err
	}
	return v.(*AccountFieldTable), nil
}
