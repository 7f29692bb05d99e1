package di

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"firestore-typed/internal/firestore"
	"firestore-typed/internal/firestore/config"
	"firestore-typed/internal/shared/logger"

	"go.uber.org/zap"
)

// Container represents a dependency injection container with lifecycle management
type Container struct {
	mu        sync.RWMutex
	services  map[reflect.Type]interface{}
	factories map[reflect.Type]func() (interface{}, error)
	// Module instances
	FirestoreModule *firestore.FirestoreModule
	// Configuration
	Config *config.FirestoreConfig
	// Logger
	Logger logger.Logger
}

// NewContainer creates an empty DI container
func NewContainer() *Container {
	return &Container{
		services:  make(map[reflect.Type]interface{}),
		factories: make(map[reflect.Type]func() (interface{}, error)),
	}
}

// InitializeFirestore opens the configured driver and builds the client and gateway.
// A nil cfg is loaded from the environment.
func (c *Container) InitializeFirestore(ctx context.Context, cfg *config.FirestoreConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FirestoreModule != nil {
		return fmt.Errorf("firestore module already initialized")
	}
	if c.Logger == nil {
		c.Logger = logger.NewLogger()
	}

	module, err := firestore.NewFirestoreModule(ctx, cfg, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create Firestore module: %w", err)
	}

	c.Config = module.Config
	c.FirestoreModule = module
	c.services[reflect.TypeOf(module.Client).Elem()] = module.Client
	return nil
}

// Register registers a service instance
func (c *Container) Register(service interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	serviceType := reflect.TypeOf(service)
	if serviceType.Kind() == reflect.Ptr {
		serviceType = serviceType.Elem()
	}

	c.services[serviceType] = service
	return nil
}

// RegisterFactory registers a factory function for a service
func (c *Container) RegisterFactory(serviceType reflect.Type, factory func() (interface{}, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.factories[serviceType] = factory
	return nil
}

// Resolve resolves a service by type
func (c *Container) Resolve(serviceType reflect.Type) (interface{}, error) {
	if serviceType.Kind() == reflect.Ptr {
		serviceType = serviceType.Elem()
	}
	c.mu.RLock()

	if service, exists := c.services[serviceType]; exists {
		c.mu.RUnlock()
		return service, nil
	}

	if factory, exists := c.factories[serviceType]; exists {
		c.mu.RUnlock()

		service, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to create service: %w", err)
		}

		c.mu.Lock()
		c.services[serviceType] = service
		c.mu.Unlock()

		return service, nil
	}

	c.mu.RUnlock()
	return nil, fmt.Errorf("service of type %v not registered", serviceType)
}

// GetService is a generic helper for resolving services
func GetService[T any](c *Container) (T, error) {
	var zero T
	serviceType := reflect.TypeOf(&zero).Elem()

	service, err := c.Resolve(serviceType)
	if err != nil {
		return zero, err
	}

	if typedService, ok := service.(T); ok {
		return typedService, nil
	}

	return zero, fmt.Errorf("service is not of expected type %T", zero)
}

// GetFirestoreModule returns the Firestore module instance
func (c *Container) GetFirestoreModule() *firestore.FirestoreModule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.FirestoreModule
}

// HealthCheck performs health check on the initialized modules
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.FirestoreModule == nil {
		return fmt.Errorf("firestore module not initialized")
	}
	if err := c.FirestoreModule.HealthCheck(ctx); err != nil {
		return fmt.Errorf("firestore health check failed: %w", err)
	}
	return nil
}

// Cleanup stops the modules and every registered service that knows how to clean up
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.FirestoreModule != nil {
		c.FirestoreModule.Stop()
		c.FirestoreModule = nil
	}

	for _, service := range c.services {
		if cleaner, ok := service.(interface{ Cleanup(context.Context) error }); ok {
			if err := cleaner.Cleanup(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to cleanup service: %w", err))
			}
		}
	}

	c.services = make(map[reflect.Type]interface{})
	c.factories = make(map[reflect.Type]func() (interface{}, error))

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Close gracefully shuts down all services in the container with timeout
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil {
		if c.Logger != nil {
			c.Logger.Warn("Cleanup errors occurred", zap.Error(err))
		}
		return err
	}
	if c.Logger != nil {
		c.Logger.Info("DI container resources closed")
	}
	return nil
}
