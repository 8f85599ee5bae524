package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// AdapterMock mocks the store.Adapter port.
type AdapterMock struct {
	mock.Mock
}

func (m *AdapterMock) Read(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	var doc []byte
	if val := args.Get(0); val != nil {
		doc = val.([]byte)
	}
	return doc, args.Error(1)
}

func (m *AdapterMock) Write(ctx context.Context, key string, doc []byte) error {
	args := m.Called(ctx, key, doc)
	return args.Error(0)
}

func (m *AdapterMock) Subscribe(key string, handler func(doc []byte)) (func(), error) {
	args := m.Called(key, handler)
	var cancel func()
	if val := args.Get(0); val != nil {
		cancel = val.(func())
	}
	return cancel, args.Error(1)
}

func (m *AdapterMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// NotifierMock mocks the notification-presentation port.
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) PermissionGranted() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *NotifierMock) RequestPermission(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *NotifierMock) Show(title, body, tag string) error {
	args := m.Called(title, body, tag)
	return args.Error(0)
}

// PublisherMock mocks the telemetry publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
