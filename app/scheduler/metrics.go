package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages settled by the dispatcher, partitioned by final outcome
	messagesDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_messages_dispatched_total",
			Help: "Messages settled by the dispatcher partitioned by outcome",
		},
		[]string{"outcome"},
	)

	// Campaigns that reached natural completion
	campaignsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sms_campaigns_completed_total",
			Help: "Campaigns that completed naturally",
		},
	)

	// Billing records settled by the billing runner, partitioned by final status
	billingRecordsSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_billing_records_settled_total",
			Help: "Billing records settled partitioned by final status",
		},
		[]string{"status"},
	)
)
