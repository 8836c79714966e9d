package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginMetric          = promauto.NewCounter(prometheus.CounterOpts{Name: "formsite_logins", Help: "Successful logins"})
	registrationMetric   = promauto.NewCounter(prometheus.CounterOpts{Name: "formsite_registrations", Help: "User registrations"})
	responseSubmitMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "formsite_response_submit", Help: "Form response submissions"})
	uploadMetric         = promauto.NewSummary(prometheus.SummaryOpts{Name: "formsite_file_upload", Help: "File uploads"})
	downloadMetric       = promauto.NewSummary(prometheus.SummaryOpts{Name: "formsite_file_download", Help: "File downloads"})
	messageSendMetric    = promauto.NewCounter(prometheus.CounterOpts{Name: "formsite_messages_sent", Help: "Messages sent"})
)
