package ports

import "github.com/jbctechsolutions/invsync/internal/domain/entity"

// Binding is the local store and remote client registered for one kind.
type Binding struct {
	Store  EntityStorePort
	Remote RemoteClientPort
}

// KindRegistryPort resolves the adapters bound to each entity kind.
type KindRegistryPort interface {
	// GetRequired returns the binding for kind or an error wrapping
	// errors.ErrKindNotRegistered.
	GetRequired(kind entity.Kind) (Binding, error)

	// Kinds returns every registered kind in registration order.
	Kinds() []entity.Kind

	// Resolve validates a requested kind set. An empty request means every
	// registered kind.
	Resolve(kinds []entity.Kind) ([]entity.Kind, error)

	// Stores returns the local store of every registered kind.
	Stores() []EntityStorePort
}
