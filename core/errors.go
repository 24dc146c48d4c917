package core

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrAlreadyInitialized is returned when Initialize is called on a live consumer.
	ErrAlreadyInitialized = errors.New("dlqmux: consumer already initialized")

	// ErrEmptyArgument is returned when a required binding field is empty.
	ErrEmptyArgument = errors.New("dlqmux: required argument is empty")

	// ErrSameTopic is returned when the dead-letter topic equals the work topic.
	ErrSameTopic = errors.New("dlqmux: dead-letter topic must differ from topic")

	// ErrNoPools is returned when a consumer is created without handle pools.
	ErrNoPools = errors.New("dlqmux: handle pools are nil")

	// ErrHandleClosed is returned by a consumer handle once it has been closed.
	// It ends the consumption loop.
	ErrHandleClosed = errors.New("dlqmux: consumer handle is closed")

	// ErrTopicExists is reported per topic by AdminHandle.CreateTopics when the
	// topic is already present. Provisioning treats it as success.
	ErrTopicExists = errors.New("dlqmux: topic already exists")

	// ErrUnknownConnection is returned by pools for an unregistered connection name.
	ErrUnknownConnection = errors.New("dlqmux: unknown connection")
)

// ConsumeError is a transient failure to pull from the broker.
type ConsumeError struct {
	Topic string
	Err   error
}

func (e *ConsumeError) Error() string {
	return fmt.Sprintf("dlqmux: consume %q: %v", e.Topic, e.Err)
}

func (e *ConsumeError) Unwrap() error { return e.Err }

// ProvisionError reports the topics that could not be created.
type ProvisionError struct {
	Errors map[string]error
}

func (e *ProvisionError) Error() string {
	topics := make([]string, 0, len(e.Errors))
	for topic := range e.Errors {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	switch len(topics) {
	case 0:
		return "dlqmux: create topics"
	case 1:
		return fmt.Sprintf("dlqmux: create topic %q: %v", topics[0], e.Errors[topics[0]])
	default:
		return fmt.Sprintf("dlqmux: create %d topics, first %q: %v", len(topics), topics[0], e.Errors[topics[0]])
	}
}

func (e *ProvisionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, err)
	}
	return errs
}
