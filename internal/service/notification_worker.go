package service

import (
	"encoding/json"
	"log"

	"storyloom/internal/util"
	"storyloom/internal/websocket"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NotificationWorker consumes notification messages from RabbitMQ and pushes
// them to the receiver's WebSocket clients
type NotificationWorker struct {
	rabbitMQ *util.RabbitMQClient
	wsHub    *websocket.Hub
	stopChan chan bool
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(rabbitMQ *util.RabbitMQClient, wsHub *websocket.Hub) *NotificationWorker {
	return &NotificationWorker{
		rabbitMQ: rabbitMQ,
		wsHub:    wsHub,
		stopChan: make(chan bool),
	}
}

// Start declares the exchange/queue pair and starts consuming
func (w *NotificationWorker) Start() error {
	if w.rabbitMQ == nil {
		return nil // RabbitMQ not available, worker will not start
	}

	channel := w.rabbitMQ.GetChannel()
	if channel == nil {
		return nil
	}

	if err := channel.ExchangeDeclare(
		NotificationExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	queue, err := channel.QueueDeclare(
		NotificationQueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	if err := channel.QueueBind(
		NotificationQueueName,
		NotificationRouting,
		NotificationExchange,
		false,
		nil,
	); err != nil {
		return err
	}

	msgs, err := channel.Consume(
		queue.Name,
		"notification_worker",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		log.Println("Notification worker started, consuming messages...")
		for {
			select {
			case <-w.stopChan:
				log.Println("Notification worker stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Println("Notification queue closed")
					return
				}
				if err := w.process(msg); err != nil {
					log.Printf("Error processing notification message: %v", err)
					// Don't ack on error, let RabbitMQ requeue
					msg.Nack(false, true)
				} else {
					msg.Ack(false)
				}
			}
		}
	}()

	return nil
}

func (w *NotificationWorker) process(msg amqp.Delivery) error {
	var notificationMsg NotificationMessage
	if err := json.Unmarshal(msg.Body, &notificationMsg); err != nil {
		return err
	}

	if w.wsHub != nil {
		payload := map[string]interface{}{
			"user_id":   notificationMsg.UserID,
			"type":      notificationMsg.Type,
			"title":     notificationMsg.Title,
			"message":   notificationMsg.Message,
			"timestamp": notificationMsg.Timestamp,
		}
		if notificationMsg.SenderID != nil {
			payload["sender_id"] = *notificationMsg.SenderID
		}
		if notificationMsg.TargetID != nil {
			payload["target_id"] = *notificationMsg.TargetID
		}
		w.wsHub.BroadcastToUser(notificationMsg.UserID, payload)
	}
	return nil
}

// Stop stops the notification worker
func (w *NotificationWorker) Stop() {
	close(w.stopChan)
}
