package jobs

import (
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/ptr"

	"dbupdater/internal/migration"
	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

const (
	// DefaultImage runs the migration script.
	DefaultImage = "migliuss/job-script-image:latest"

	DefaultBackoffLimit            int32 = 3
	DefaultTTLSecondsAfterFinished int32 = 300

	// ContainerName is the name of the single container in a migration Job.
	ContainerName = "db-update"

	// EnvTargetVersion carries the version to migrate to into the container.
	EnvTargetVersion = "TARGET_DB_VERSION"

	LabelApp      = "app"
	LabelAppValue = "db-update"

	// LabelObject holds the name of the DatabaseUpdate that owns the Job.
	LabelObject = "dbupdate_cr"

	AnnotationTargetVersion = "dbupdater.io/target-version"
)

// JobConfig shapes the Jobs created for migration tasks.
type JobConfig struct {
	Image                   string
	Command                 []string
	BackoffLimit            int32
	TTLSecondsAfterFinished int32
	ServiceAccountName      string
}

// DefaultJobConfig returns the configuration used when none is given.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Image:                   DefaultImage,
		BackoffLimit:            DefaultBackoffLimit,
		TTLSecondsAfterFinished: DefaultTTLSecondsAfterFinished,
	}
}

func (c JobConfig) withDefaults() JobConfig {
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.BackoffLimit == 0 {
		c.BackoffLimit = DefaultBackoffLimit
	}
	if c.TTLSecondsAfterFinished == 0 {
		c.TTLSecondsAfterFinished = DefaultTTLSecondsAfterFinished
	}
	return c
}

// BuildJob returns the Job that executes task. It has no side effects so the
// same manifest can be printed by the CLI and created by the Runner.
func BuildJob(task migration.Task, cfg JobConfig) *batchv1.Job {
	cfg = cfg.withDefaults()

	labels := map[string]string{
		LabelApp:    LabelAppValue,
		LabelObject: labelValue(task.Object.Name),
	}

	container := corev1.Container{
		Name:  ContainerName,
		Image: cfg.Image,
		Env: []corev1.EnvVar{{
			Name:  EnvTargetVersion,
			Value: task.TargetVersion,
		}},
	}
	if len(cfg.Command) > 0 {
		container.Command = append([]string(nil), cfg.Command...)
	}

	job := &batchv1.Job{
		TypeMeta: metav1.TypeMeta{
			APIVersion: batchv1.SchemeGroupVersion.String(),
			Kind:       "Job",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      task.ID,
			Namespace: task.Object.Namespace,
			Labels:    labels,
			Annotations: map[string]string{
				AnnotationTargetVersion: task.TargetVersion,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            ptr.To(cfg.BackoffLimit),
			TTLSecondsAfterFinished: ptr.To(cfg.TTLSecondsAfterFinished),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: copyLabels(labels),
				},
				Spec: corev1.PodSpec{
					RestartPolicy:      corev1.RestartPolicyNever,
					ServiceAccountName: cfg.ServiceAccountName,
					Containers:         []corev1.Container{container},
				},
			},
		},
	}

	if task.Object.UID != "" {
		job.OwnerReferences = []metav1.OwnerReference{{
			APIVersion:         dbupdatev1.GroupVersion.String(),
			Kind:               dbupdatev1.Kind,
			Name:               task.Object.Name,
			UID:                types.UID(task.Object.UID),
			Controller:         ptr.To(true),
			BlockOwnerDeletion: ptr.To(true),
		}}
	}

	return job
}

// Phase maps the state of job to a task phase. A failed condition wins over
// any success counters.
func Phase(job *batchv1.Job) migration.TaskPhase {
	switch {
	case hasCondition(job, batchv1.JobFailed):
		return migration.TaskFailed
	case hasCondition(job, batchv1.JobComplete), job.Status.Succeeded >= 1:
		return migration.TaskSucceeded
	case job.Status.Active > 0:
		return migration.TaskRunning
	default:
		return migration.TaskPending
	}
}

func hasCondition(job *batchv1.Job, condType batchv1.JobConditionType) bool {
	for _, c := range job.Status.Conditions {
		if c.Type == condType && c.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// labelValue truncates an object name to the 63 characters a label value
// may hold.
func labelValue(name string) string {
	if len(name) <= 63 {
		return name
	}
	return strings.TrimRight(name[:63], "-.")
}

func copyLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
