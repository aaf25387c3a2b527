package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DatabaseUpdatePhase summarizes where a DatabaseUpdate is in its migration.
type DatabaseUpdatePhase string

const (
	// PhaseConverged means status.currentVersion equals spec.version.
	PhaseConverged DatabaseUpdatePhase = "Converged"

	// PhaseMigrating means a migration Job exists and has not finished yet.
	PhaseMigrating DatabaseUpdatePhase = "Migrating"

	// PhaseUpdatingDownstream means the Job succeeded but the Deployment has
	// not been updated yet.
	PhaseUpdatingDownstream DatabaseUpdatePhase = "UpdatingDownstream"

	// PhaseFailed means the last attempt failed and will be retried.
	PhaseFailed DatabaseUpdatePhase = "Failed"
)

// Condition types set on DatabaseUpdate.status.conditions.
const (
	ConditionReady     = "Ready"
	ConditionMigrating = "Migrating"
)

// DatabaseUpdateSpec defines the desired state of DatabaseUpdate
type DatabaseUpdateSpec struct {
	// Version is the database schema version the application should run against.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=128
	Version string `json:"version" yaml:"version"`
}

// DatabaseUpdateStatus defines the observed state of DatabaseUpdate
type DatabaseUpdateStatus struct {
	// CurrentVersion is the last version that was migrated and propagated.
	// Empty means the database has never been migrated by the operator.
	CurrentVersion string `json:"currentVersion,omitempty" yaml:"currentVersion,omitempty"`

	// Phase summarizes the most recent reconciliation.
	// +kubebuilder:validation:Enum=Converged;Migrating;UpdatingDownstream;Failed
	Phase DatabaseUpdatePhase `json:"phase,omitempty" yaml:"phase,omitempty"`

	// TaskName is the name of the migration Job for the pending version.
	TaskName string `json:"taskName,omitempty" yaml:"taskName,omitempty"`

	// LastError contains the sanitized error of the most recent failed attempt.
	LastError string `json:"lastError,omitempty" yaml:"lastError,omitempty"`

	// ObservedGeneration is the metadata.generation last reconciled.
	ObservedGeneration int64 `json:"observedGeneration,omitempty" yaml:"observedGeneration,omitempty"`

	// LastTransitionTime is when Phase last changed.
	LastTransitionTime *metav1.Time `json:"lastTransitionTime,omitempty" yaml:"lastTransitionTime,omitempty"`

	// Conditions represent the latest available observations of the DatabaseUpdate's state.
	Conditions []metav1.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=dbu
// +kubebuilder:printcolumn:name="Desired",type="string",JSONPath=".spec.version"
// +kubebuilder:printcolumn:name="Current",type="string",JSONPath=".status.currentVersion"
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// DatabaseUpdate is the Schema for the databaseupdates API
type DatabaseUpdate struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   DatabaseUpdateSpec   `json:"spec,omitempty"`
	Status DatabaseUpdateStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// DatabaseUpdateList contains a list of DatabaseUpdate
type DatabaseUpdateList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []DatabaseUpdate `json:"items"`
}

func init() {
	SchemeBuilder.Register(&DatabaseUpdate{}, &DatabaseUpdateList{})
}
