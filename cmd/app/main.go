package main

import (
	"log"

	"github.com/director74/fulfillment_engine/config"
	"github.com/director74/fulfillment_engine/internal/app"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Создание приложения
	engineApp, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("Ошибка создания приложения: %v", err)
	}

	// Запуск приложения
	if err := engineApp.Run(); err != nil {
		log.Fatalf("Ошибка запуска приложения: %v", err)
	}
}
