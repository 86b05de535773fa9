package siwe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devilmonastery/tessera/internal/credentials"
	"github.com/devilmonastery/tessera/internal/pkg/logger"
	"github.com/devilmonastery/tessera/internal/wallet"
)

// State is a step of the sign-in sequence.
type State int

const (
	Unauthenticated State = iota
	NonceRequested
	MessageSigned
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case NonceRequested:
		return "nonce-requested"
	case MessageSigned:
		return "message-signed"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Service is the part of the platform API the sequence talks to.
type Service interface {
	Nonce(ctx context.Context, address string) (string, error)
	LoginWithSignature(ctx context.Context, message, signature string) (string, error)
}

// ErrOutOfOrder is returned when a step is called from the wrong state.
var ErrOutOfOrder = errors.New("sign-in step called out of order")

// StepError reports the state the sequence was in when a step failed.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("sign-in failed in state %s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Config holds the inputs of the sign-in message.
type Config struct {
	APIURI    string
	ChainID   int64
	Statement string
	Clock     func() time.Time
}

// Flow runs Unauthenticated -> NonceRequested -> MessageSigned ->
// Authenticated. A failing step leaves the state where it was; callers start
// over with a new Flow.
type Flow struct {
	service Service
	store   credentials.Store
	wallet  *wallet.Wallet
	cfg     Config

	state     State
	nonce     string
	message   *Message
	signature string
	token     *credentials.Token
}

// NewFlow creates a sign-in sequence for w. store may be nil when the
// signed message is used for something other than a session (registration).
func NewFlow(service Service, store credentials.Store, w *wallet.Wallet, cfg Config) *Flow {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Flow{service: service, store: store, wallet: w, cfg: cfg}
}

func (f *Flow) State() State { return f.state }

// Message returns the signed message text once MessageSigned is reached.
func (f *Flow) Message() string {
	if f.message == nil {
		return ""
	}
	return f.message.String()
}

func (f *Flow) Signature() string { return f.signature }

// RequestNonce fetches a nonce for the wallet address.
func (f *Flow) RequestNonce(ctx context.Context) error {
	if f.state != Unauthenticated {
		return f.fail(ErrOutOfOrder)
	}
	nonce, err := f.service.Nonce(ctx, f.wallet.Address())
	if err != nil {
		return f.fail(err)
	}
	f.nonce = nonce
	f.state = NonceRequested
	f.log().Debug("nonce received")
	return nil
}

// Sign builds the sign-in message and signs it with the wallet key.
func (f *Flow) Sign() error {
	if f.state != NonceRequested {
		return f.fail(ErrOutOfOrder)
	}
	msg, err := NewMessage(f.cfg.APIURI, f.wallet.Address(), f.cfg.ChainID, f.nonce, f.cfg.Clock())
	if err != nil {
		return f.fail(err)
	}
	msg.Statement = f.cfg.Statement

	sig, err := f.wallet.SignPersonal(msg.String())
	if err != nil {
		return f.fail(err)
	}
	f.message = msg
	f.signature = sig
	f.state = MessageSigned
	f.log().Debug("message signed", slog.String("domain", msg.Domain), slog.Int64("chain_id", msg.ChainID))
	return nil
}

// Submit exchanges the signed message for a bearer token and caches it for
// credentials.SessionTTL.
func (f *Flow) Submit(ctx context.Context) (*credentials.Token, error) {
	if f.state != MessageSigned {
		return nil, f.fail(ErrOutOfOrder)
	}
	if f.store == nil {
		return nil, f.fail(errors.New("no credential store"))
	}
	bearer, err := f.service.LoginWithSignature(ctx, f.message.String(), f.signature)
	if err != nil {
		return nil, f.fail(err)
	}
	token, err := f.store.Save(bearer, credentials.SessionTTL)
	if err != nil {
		return nil, f.fail(err)
	}
	f.token = token
	f.state = Authenticated
	f.log().Info("signed in", slog.String("token", logger.Preview(bearer)))
	return token, nil
}

// Run performs all three steps.
func (f *Flow) Run(ctx context.Context) (*credentials.Token, error) {
	if err := f.RequestNonce(ctx); err != nil {
		return nil, err
	}
	if err := f.Sign(); err != nil {
		return nil, err
	}
	return f.Submit(ctx)
}

func (f *Flow) fail(err error) error {
	return &StepError{State: f.state, Err: err}
}

func (f *Flow) log() *slog.Logger {
	return slog.Default().With("component", "siwe", "address", f.wallet.Address(), "state", f.state.String())
}
