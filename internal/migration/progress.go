package migration

// EntityKind names the type of entity whose status changed.
type EntityKind string

// Entity kinds reported to progress observers.
const (
	EntityKindProject    EntityKind = "project"
	EntityKindRepository EntityKind = "repository"
	EntityKindTeam       EntityKind = "team"
	EntityKindMember     EntityKind = "member"
)

// StatusChange describes one status transition.
type StatusChange struct {
	Kind        EntityKind
	ProjectName string
	EntityName  string
	Status      Status
	Reason      string
}

// ProgressObserver receives status transitions while a run executes.
type ProgressObserver interface {
	StatusChanged(change StatusChange)
}

// NoopProgressObserver discards progress notifications.
type NoopProgressObserver struct{}

// StatusChanged implements ProgressObserver.
func (NoopProgressObserver) StatusChanged(StatusChange) {}
