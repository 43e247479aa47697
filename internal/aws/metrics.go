package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsPublisher writes counters to a CloudWatch namespace.
type MetricsPublisher struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetricsPublisher returns a publisher for namespace (e.g. "Leadflow").
func NewMetricsPublisher(client CloudWatchAPI, namespace string) *MetricsPublisher {
	return &MetricsPublisher{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count records value under metric with a single Outcome dimension.
func (m *MetricsPublisher) Count(ctx context.Context, metric, outcome string, value float64) error {
	datum := cwtypes.MetricDatum{
		MetricName: awsString(metric),
		Timestamp:  ptrTime(m.nowFunc()),
		Unit:       cwtypes.StandardUnitCount,
		Value:      &value,
	}
	if outcome != "" {
		datum.Dimensions = []cwtypes.Dimension{{Name: awsString("Outcome"), Value: awsString(outcome)}}
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  awsString(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

// RecordOutcome counts one fulfillment reaching a terminal state.
func (m *MetricsPublisher) RecordOutcome(ctx context.Context, outcome string) error {
	return m.Count(ctx, "FulfillmentOutcome", outcome, 1)
}

func ptrTime(t time.Time) *time.Time { return &t }
