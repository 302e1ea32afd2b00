package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docdash/internal/domain"
	"docdash/internal/port"
	"docdash/internal/service"
	"docdash/mocks"
)

func putFor(key string) interface{} {
	return mock.MatchedBy(func(in port.PutInput) bool { return in.Key == key })
}

func TestUploadService_Submit_Accepted(t *testing.T) {
	gw := new(mocks.MockGateway)
	svc := service.NewUploadService(gw, nil, nil)
	pending := domain.NewPendingSet()

	body := []byte("%PDF-1.4 purchase order")
	gw.On("PutObject", mock.Anything, mock.MatchedBy(func(in port.PutInput) bool {
		return in.Key == "acme/po.pdf" && string(in.Body) == string(body) && in.ContentType == "application/pdf"
	})).Return(&port.GatewayResponse{
		StatusCode: 200,
		Body:       []byte(`{"message":"stored"}`),
		URL:        "https://gw/bucket/acme/po.pdf",
	}, nil)

	outcome := svc.Submit(context.Background(), pending, domain.NewUploadTarget("acme", "po.pdf", body))

	assert.Equal(t, domain.UploadStatusAccepted, outcome.Status)
	assert.True(t, outcome.Accepted())
	assert.Equal(t, "acme/po.pdf", outcome.ObjectKey)
	assert.Equal(t, 200, outcome.StatusCode)
	assert.Equal(t, "https://gw/bucket/acme/po.pdf", outcome.RequestURL)
	assert.Equal(t, `{"message":"stored"}`, outcome.BodySnippet)
	assert.Equal(t, []string{"acme/po.pdf"}, pending.Keys())
	gw.AssertExpectations(t)
}

func TestUploadService_Submit_EmptyBodyForwarded(t *testing.T) {
	gw := new(mocks.MockGateway)
	svc := service.NewUploadService(gw, nil, nil)

	gw.On("PutObject", mock.Anything, mock.MatchedBy(func(in port.PutInput) bool {
		return in.Key == "acme/empty.txt" && len(in.Body) == 0
	})).Return(&port.GatewayResponse{StatusCode: 200}, nil)

	outcome := svc.Submit(context.Background(), nil, domain.NewUploadTarget("acme/", "empty.txt", nil))
	assert.True(t, outcome.Accepted())
}

func TestUploadService_Submit_Non200IsRejected(t *testing.T) {
	for _, code := range []int{201, 204, 403, 500} {
		gw := new(mocks.MockGateway)
		svc := service.NewUploadService(gw, nil, nil)
		pending := domain.NewPendingSet()

		gw.On("PutObject", mock.Anything, putFor("acme/po.pdf")).
			Return(&port.GatewayResponse{StatusCode: code, Body: []byte("denied")}, nil)

		outcome := svc.Submit(context.Background(), pending, domain.NewUploadTarget("acme", "po.pdf", []byte("x")))

		assert.Equal(t, domain.UploadStatusRejected, outcome.Status, "status %d", code)
		assert.Equal(t, code, outcome.StatusCode)
		assert.Equal(t, "denied", outcome.BodySnippet)
		assert.Equal(t, 0, pending.Len(), "rejected uploads must not be polled")
	}
}

func TestUploadService_Submit_TruncatesLongBody(t *testing.T) {
	gw := new(mocks.MockGateway)
	svc := service.NewUploadService(gw, nil, nil)

	gw.On("PutObject", mock.Anything, mock.Anything).
		Return(&port.GatewayResponse{StatusCode: 400, Body: []byte(strings.Repeat("e", 2000))}, nil)

	outcome := svc.Submit(context.Background(), nil, domain.NewUploadTarget("acme", "po.pdf", []byte("x")))
	assert.Len(t, outcome.BodySnippet, 512+len("..."))
	assert.True(t, strings.HasSuffix(outcome.BodySnippet, "..."))
}

func TestUploadService_Submit_TransportFailure(t *testing.T) {
	gw := new(mocks.MockGateway)
	svc := service.NewUploadService(gw, nil, nil)
	pending := domain.NewPendingSet()

	gw.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

	outcome := svc.Submit(context.Background(), pending, domain.NewUploadTarget("acme", "po.pdf", []byte("x")))

	assert.Equal(t, domain.UploadStatusTransportFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "connection refused")
	assert.Zero(t, outcome.StatusCode)
	assert.Equal(t, 0, pending.Len())
}

func TestUploadService_Submit_CircuitOpen(t *testing.T) {
	gw := new(mocks.MockGateway)
	svc := service.NewUploadService(gw, nil, nil)
	pending := domain.NewPendingSet()

	gw.On("PutObject", mock.Anything, putFor("acme/po.pdf")).
		Return(nil, fmt.Errorf("gateway.put_object: %w", gobreaker.ErrOpenState))

	outcome := svc.Submit(context.Background(), pending, domain.NewUploadTarget("acme", "po.pdf", []byte("x")))

	assert.Equal(t, domain.UploadStatusTransportFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "storage gateway unavailable")
	assert.NotContains(t, outcome.Reason, gobreaker.ErrOpenState.Error())
	assert.Zero(t, pending.Len())
}

func TestUploadService_SubmitBatch_PartialFailure(t *testing.T) {
	gw := new(mocks.MockGateway)
	svc := service.NewUploadService(gw, nil, nil)
	pending := domain.NewPendingSet()

	gw.On("PutObject", mock.Anything, putFor("acme/a.pdf")).Return(&port.GatewayResponse{StatusCode: 200}, nil)
	gw.On("PutObject", mock.Anything, putFor("acme/b.pdf")).Return(nil, errors.New("timeout"))
	gw.On("PutObject", mock.Anything, putFor("acme/c.pdf")).Return(&port.GatewayResponse{StatusCode: 200}, nil)

	targets := []domain.UploadTarget{
		domain.NewUploadTarget("acme", "a.pdf", []byte("a")),
		domain.NewUploadTarget("acme", "b.pdf", []byte("b")),
		domain.NewUploadTarget("acme", "c.pdf", []byte("c")),
	}
	outcomes := svc.SubmitBatch(context.Background(), pending, targets)

	require.Len(t, outcomes, 3)
	assert.Equal(t, domain.UploadStatusAccepted, outcomes[0].Status)
	assert.Equal(t, domain.UploadStatusTransportFailed, outcomes[1].Status)
	assert.Equal(t, domain.UploadStatusAccepted, outcomes[2].Status)
	assert.Equal(t, []string{"acme/a.pdf", "acme/c.pdf"}, pending.Keys())
	gw.AssertNumberOfCalls(t, "PutObject", 3)
}
