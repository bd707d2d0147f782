// Package pods manages workload pods on the cluster: existence checks,
// launch, label edits and deletes with forced fallback.
package pods

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	"launcher/internal/apperrors"
	"launcher/internal/observability"
	"launcher/internal/workload"
)

// LogPathAnnotation records where the workload writes its logs.
const LogPathAnnotation = "launcher/log-path"

// Client is the single point through which the launcher mutates cluster pods.
type Client struct {
	cs      kubernetes.Interface
	cfg     Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a pod client. metrics may be nil.
func NewClient(cs kubernetes.Interface, cfg Config, metrics *observability.Metrics) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cs:      cs,
		cfg:     cfg,
		metrics: metrics,
		logger:  slog.With("component", "pods", "namespace", cfg.Namespace),
	}
}

// PodsExistForWorkload reports whether a non-terminal pod carries the
// workload's ID. Listing errors return false so the caller proceeds to launch.
func (c *Client) PodsExistForWorkload(ctx context.Context, workloadID string) bool {
	selector := labels.SelectorFromSet(labels.Set{workload.LabelWorkloadID: SanitizeLabelValue(workloadID)})
	list, err := c.cs.CoreV1().Pods(c.cfg.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		c.logger.Warn("Failed to list pods for workload, assuming none", "workload_id", workloadID, "error", err)
		return false
	}
	return slices.ContainsFunc(list.Items, func(p corev1.Pod) bool { return !isTerminal(&p) })
}

// ListJobPods lists pods managed by the launcher, narrowed by extra label
// equality requirements when given.
func (c *Client) ListJobPods(ctx context.Context, extra map[string]string) ([]corev1.Pod, error) {
	set := labels.Set{workload.LabelManagedBy: workload.ManagedByValue}
	for k, v := range extra {
		set[k] = SanitizeLabelValue(v)
	}
	list, err := c.cs.CoreV1().Pods(c.cfg.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(set).String(),
	})
	if err != nil {
		return nil, apperrors.Unavailable("pods.list", err)
	}
	return list.Items, nil
}

// DeleteMutexPods deletes every non-terminal launcher pod holding mutexKey.
// ok is false when listing failed or any delete did not succeed.
func (c *Client) DeleteMutexPods(ctx context.Context, mutexKey, reason string) (int, bool) {
	pods, err := c.ListJobPods(ctx, map[string]string{workload.LabelMutexKey: mutexKey})
	if err != nil {
		c.logger.Warn("Failed to list mutex pods", "mutex_key", mutexKey, "error", err)
		return 0, false
	}

	deleted, ok := 0, true
	for i := range pods {
		if isTerminal(&pods[i]) {
			continue
		}
		if c.DeletePod(ctx, &pods[i], reason) {
			deleted++
		} else {
			ok = false
		}
	}
	return deleted, ok
}

// DeletePod removes pod, trying a graceful delete bounded by the delete
// timeout and then a forced one. The pair is retried with a fixed delay.
// A pod that is already gone counts as deleted. It never panics; the
// result reports whether the pod is gone.
func (c *Client) DeletePod(ctx context.Context, pod *corev1.Pod, reason string) bool {
	logger := c.logger.With("pod", pod.Name, "reason", reason)

	for attempt := range c.cfg.DeleteRetryMax {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				logger.Warn("Pod delete abandoned", "error", ctx.Err())
				c.recordDelete(ctx, true, false)
				return false
			case <-time.After(c.cfg.DeleteRetryDelay):
			}
		}

		forced, err := c.deleteOnce(ctx, pod.Namespace, pod.Name)
		if err == nil {
			logger.Info("Pod deleted", "forced", forced, "attempt", attempt+1)
			c.recordDelete(ctx, forced, true)
			return true
		}
		logger.Warn("Pod delete attempt failed", "attempt", attempt+1, "error", err)
	}

	c.recordDelete(ctx, true, false)
	return false
}

// deleteOnce issues a graceful delete and, if it fails or times out, a
// forced delete. forced reports whether the forced path was taken.
// An empty namespace means the configured one.
func (c *Client) deleteOnce(ctx context.Context, namespace, name string) (forced bool, err error) {
	if namespace == "" {
		namespace = c.cfg.Namespace
	}
	pods := c.cs.CoreV1().Pods(namespace)

	gctx, cancel := context.WithTimeout(ctx, c.cfg.DeleteTimeout)
	err = pods.Delete(gctx, name, metav1.DeleteOptions{})
	cancel()
	if err == nil || k8serrors.IsNotFound(err) {
		return false, nil
	}

	zero := int64(0)
	err = pods.Delete(ctx, name, metav1.DeleteOptions{GracePeriodSeconds: &zero})
	if err == nil || k8serrors.IsNotFound(err) {
		return true, nil
	}
	return true, err
}

// LaunchPod creates the workload pod from input. Labels are the message
// labels plus the launcher's identity labels.
func (c *Client) LaunchPod(ctx context.Context, workloadID string, input *workload.JobInput, podLabels map[string]string, logPath string) error {
	pod, err := c.buildPod(workloadID, input, podLabels, logPath)
	if err != nil {
		return err
	}

	created, err := c.cs.CoreV1().Pods(c.cfg.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		return apperrors.Conflict("pod", pod.Name, fmt.Sprintf("pod %s already exists", pod.Name))
	}
	if err != nil {
		return apperrors.Unavailable("pods.create", err)
	}

	c.logger.Info("Pod launched", "pod", created.Name, "workload_id", workloadID, "image", input.Image)
	if c.metrics != nil {
		c.metrics.RecordPodLaunched(ctx, podLabels[workload.LabelType])
	}
	return nil
}

func (c *Client) buildPod(workloadID string, input *workload.JobInput, podLabels map[string]string, logPath string) (*corev1.Pod, error) {
	lbls := sanitizeLabels(podLabels)
	lbls[workload.LabelManagedBy] = workload.ManagedByValue
	lbls[workload.LabelWorkloadID] = SanitizeLabelValue(workloadID)

	container := corev1.Container{
		Name:  "main",
		Image: input.Image,
		Env:   envVars(input.Environment),
	}
	if input.Command != "" {
		container.Command = []string{"/bin/sh", "-c", input.Command}
	}

	res, err := resources(input)
	if err != nil {
		return nil, err
	}
	container.Resources = res

	if len(input.Config) > 0 {
		cfg, err := json.Marshal(input.Config)
		if err != nil {
			return nil, apperrors.Validation("config", fmt.Sprintf("config is not serializable: %v", err))
		}
		container.Env = append(container.Env, corev1.EnvVar{Name: "JOB_CONFIG", Value: string(cfg)})
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName(podLabels[workload.LabelType], workloadID),
			Namespace: c.cfg.Namespace,
			Labels:    lbls,
		},
		Spec: corev1.PodSpec{
			RestartPolicy:      corev1.RestartPolicyNever,
			ServiceAccountName: c.cfg.ServiceAccount,
			Containers:         []corev1.Container{container},
		},
	}
	if logPath != "" {
		pod.Annotations = map[string]string{LogPathAnnotation: logPath}
	}
	if input.TimeoutSeconds > 0 {
		deadline := int64(input.TimeoutSeconds)
		pod.Spec.ActiveDeadlineSeconds = &deadline
	}
	if input.JobID != 0 {
		pod.Labels["job-id"] = strconv.FormatInt(input.JobID, 10)
		pod.Labels["attempt"] = strconv.Itoa(input.AttemptNumber)
	}
	return pod, nil
}

// LabelPod merges labels into the pod's existing labels.
func (c *Client) LabelPod(ctx context.Context, pod *corev1.Pod, podLabels map[string]string) error {
	patch, err := json.Marshal(map[string]any{
		"metadata": map[string]any{"labels": sanitizeLabels(podLabels)},
	})
	if err != nil {
		return apperrors.Internal("pods.label", err)
	}

	_, err = c.cs.CoreV1().Pods(c.cfg.Namespace).Patch(ctx, pod.Name, types.MergePatchType, patch, metav1.PatchOptions{})
	switch {
	case k8serrors.IsNotFound(err):
		return apperrors.NotFound("pod", pod.Name)
	case err != nil:
		return apperrors.Unavailable("pods.label", err)
	}
	return nil
}

// Ready implements health.ReadinessChecker by asking the API server for its version.
// The discovery call takes no context, so it runs in its own goroutine and
// an expired ctx returns without waiting for it.
func (c *Client) Ready(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		_, err := c.cs.Discovery().ServerVersion()
		errc <- err
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("kubernetes API unreachable: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kubernetes API unreachable: %w", ctx.Err())
	}
}

func (c *Client) recordDelete(ctx context.Context, forced, success bool) {
	if c.metrics != nil {
		c.metrics.RecordPodDelete(ctx, forced, success)
	}
}

func isTerminal(p *corev1.Pod) bool {
	return p.Status.Phase == corev1.PodSucceeded || p.Status.Phase == corev1.PodFailed
}

func envVars(env map[string]string) []corev1.EnvVar {
	out := make([]corev1.EnvVar, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return out
}

// resources builds equal requests and limits from the input's CPU and memory (MB).
func resources(input *workload.JobInput) (corev1.ResourceRequirements, error) {
	list := corev1.ResourceList{}
	if input.CPU > 0 {
		list[corev1.ResourceCPU] = *resource.NewMilliQuantity(int64(input.CPU*1000), resource.DecimalSI)
	}
	if input.Memory > 0 {
		list[corev1.ResourceMemory] = *resource.NewQuantity(int64(input.Memory)*1024*1024, resource.BinarySI)
	}
	if input.CPU < 0 || input.Memory < 0 {
		return corev1.ResourceRequirements{}, apperrors.Validation("resources", "cpu and memory must not be negative")
	}
	if len(list) == 0 {
		return corev1.ResourceRequirements{}, nil
	}
	return corev1.ResourceRequirements{Requests: list, Limits: list.DeepCopy()}, nil
}
