package container

import (
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/samber/do"
	"github.com/serroba/window-limiter/internal/alerts"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const alertsConsumerGroup = "alerts"

func PublisherGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*alerts.PublisherGroup, error) {
		conn := do.MustInvoke[*RedisConn](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client:     conn.Client,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		}, alerts.NewZapLogger(logger))
		if err != nil {
			return nil, err
		}

		return alerts.NewPublisherGroup(publisher), nil
	})
}

func AlertsPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*alerts.Notifier, error) {
		opts := do.MustInvoke[*Options](i)
		group := do.MustInvoke[*alerts.PublisherGroup](i)
		instance := do.MustInvoke[InstanceID](i)
		logger := do.MustInvoke[*zap.Logger](i)

		limit := rate.Limit(float64(opts.AlertsPerMinute) / 60)

		return alerts.NewNotifier(
			alerts.NewPublishFunc(group.Publisher(), alerts.TopicDegraded),
			string(instance),
			limit,
			opts.AlertBurst,
			logger,
		), nil
	})
}

func ConsumerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*alerts.Consumer, error) {
		conn := do.MustInvoke[*RedisConn](i)
		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        conn.Client,
			Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
			ConsumerGroup: alertsConsumerGroup,
		}, alerts.NewZapLogger(logger))
		if err != nil {
			return nil, err
		}

		return alerts.NewConsumer(subscriber, alerts.TopicDegraded, alerts.LogHandler(logger), logger), nil
	})
}
