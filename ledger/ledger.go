// Package ledger builds, signs and submits identity transactions to a pool
// of ledger nodes and validates what the nodes answer.
//
// A request moves through Built, optionally Signed, and Submitted, and ends
// Accepted, Rejected or TimedOut. Nothing here retries: a caller that wants
// another attempt builds a new request.
package ledger

import (
	"context"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// Signer signs bytes on behalf of an identity held in a wallet. It returns
// ErrUnknownIdentity when it has no key for the DID.
type Signer interface {
	Sign(ctx context.Context, did string, msg []byte) ([]byte, error)
}

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
}

type Option func(o *options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegisterer registers the submission metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

type Ledger struct {
	builder   *Builder
	submitter *Submitter
	signer    Signer
	logger    *zap.Logger
}

// New returns a ledger client over p. signer may be nil for read-only use.
func New(p Pool, signer Signer, opts ...Option) *Ledger {
	o := newOptions(opts)

	return &Ledger{
		builder:   NewBuilder(p),
		submitter: NewSubmitter(p, opts...),
		signer:    signer,
		logger:    o.logger.Named("ledger"),
	}
}

func (l *Ledger) BuildNymRequest(submitter, dest string, opts ...NymOption) (*Request, error) {
	return l.builder.BuildNymRequest(submitter, dest, opts...)
}

func (l *Ledger) BuildGetNymRequest(submitter, dest string) (*Request, error) {
	return l.builder.BuildGetNymRequest(submitter, dest)
}

// SubmitRequest sends req as is. Writes without a signature are refused by
// the ledger and come back as a *LedgerRejection.
func (l *Ledger) SubmitRequest(ctx context.Context, req *Request) (*Reply, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	p := l.submitter.Start(ctx, req)
	return l.await(ctx, p)
}

func (l *Ledger) await(ctx context.Context, p *Pending) (*Reply, error) {
	reply, err := p.Wait(ctx)

	req := p.Request()
	log := l.logger.With(
		zap.String("identifier", req.Identifier),
		zap.Uint64("reqId", req.ReqID),
		zap.String("txnType", req.Operation.Type()),
		zap.Stringer("state", p.State()),
	)

	if err != nil {
		log.Info("request not accepted", zap.Error(err))
		return reply, err
	}

	log.Debug("request accepted", zap.Uint64("seqNo", reply.SeqNo()))

	return reply, nil
}

func (l *Ledger) sign(ctx context.Context, signerDID string, msg []byte) (string, error) {
	if l.signer == nil {
		return "", errors.Wrap(ErrUnknownIdentity, "no wallet configured")
	}

	sig, err := l.signer.Sign(ctx, signerDID, msg)
	if err != nil {
		return "", errors.Wrapf(err, "sign as %s", signerDID)
	}

	return base58.Encode(sig), nil
}

// SignRequest returns a copy of req signed by signerDID.
func (l *Ledger) SignRequest(ctx context.Context, signerDID string, req *Request) (*Request, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	input, err := SignatureInput(req)
	if err != nil {
		return nil, err
	}

	sig, err := l.sign(ctx, signerDID, input)
	if err != nil {
		return nil, err
	}

	return req.WithSignature(sig), nil
}

// SignAndSubmitRequest signs req with the wallet key of signerDID and
// submits it.
func (l *Ledger) SignAndSubmitRequest(ctx context.Context, signerDID string, req *Request) (*Reply, error) {
	signed, err := l.SignRequest(ctx, signerDID, req)
	if err != nil {
		return nil, err
	}

	return l.SubmitRequest(ctx, signed)
}

// SignRequestJSON signs a serialized request and adds the signature without
// touching the rest of the document.
func (l *Ledger) SignRequestJSON(ctx context.Context, signerDID, reqJSON string) (string, error) {
	if _, err := ParseRequest([]byte(reqJSON)); err != nil {
		return "", err
	}

	input, err := SignatureInputJSON([]byte(reqJSON))
	if err != nil {
		return "", err
	}

	sig, err := l.sign(ctx, signerDID, input)
	if err != nil {
		return "", err
	}

	out, err := sjson.Set(reqJSON, "signature", sig)
	if err != nil {
		return "", errors.Wrap(err, "attach signature")
	}

	return out, nil
}

// SubmitRequestJSON submits a serialized request byte for byte and returns
// the raw accepted reply.
func (l *Ledger) SubmitRequestJSON(ctx context.Context, reqJSON string) (string, error) {
	req, err := ParseRequest([]byte(reqJSON))
	if err != nil {
		return "", err
	}

	reply, err := l.await(ctx, l.submitter.startRaw(ctx, req, []byte(reqJSON)))
	if err != nil {
		return "", err
	}

	return string(reply.Raw), nil
}

func (l *Ledger) SignAndSubmitRequestJSON(ctx context.Context, signerDID, reqJSON string) (string, error) {
	signed, err := l.SignRequestJSON(ctx, signerDID, reqJSON)
	if err != nil {
		return "", err
	}

	return l.SubmitRequestJSON(ctx, signed)
}
