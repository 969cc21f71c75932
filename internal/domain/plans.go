package domain

const (
	demoRecurringConsent = "Согласен на подключение тарифа “Эксклюзив” и автоматическую оплату 999 рублей каждые 10 дней " +
		"по истечении пробного периода через 1 сутки. При условии неуспешной попытки подключения тарифа “Эксклюзив” " +
		"активируется тариф “Фулл” стоимостью 349р за 4 дня использования. При условии неуспешной попытки подключения " +
		"тарифа “Фулл” активируется тариф “Эко” стоимостью 249р за 2 дня."
	subscriptionRecurringConsent = "Согласен с правилами предоставления доступа к сервису по подписке с использованием " +
		"автоплатежа и уведомлен о подключении платной подписки"

	// TermsConsent is the general consent every plan requires.
	TermsConsent = "Согласен с договором оферты, политикой обработки персональных данных, правилами предоставления услуг, " +
		"офертой на рекуррентные платежи и договором сохранения учетных данных."
)

var planCatalog = []Plan{
	{
		Name:         "Демо",
		DisplayPrice: "19₽",
		Duration:     "Далее 999₽/10 дн.",
		Subtitle:     "Попробуй весь функционал сервиса всего за 19₽ на 24 часа!",
		Features: []string{
			"Всё самое важное за копейки — полный доступ к сервису",
			"Кто в тени? — раскрой скрытых поклонников и тайные связи",
			"Быстро, дёшево, эффективно — идеально, если нужно проверить срочно!",
		},
		RecurringConsent: demoRecurringConsent,
	},
	{
		Name:         "Эко",
		DisplayPrice: "249₽",
		Duration:     "2 дня",
		Subtitle:     "2 дня мощной аналитики дешевле, чем обед в кафе!",
		Features: []string{
			"Лайки и комментарии – Увидишь, кто активнее всего взаимодействует",
			"Экономия времени – Вся ключевая информация за 2 дня",
			"Скрытые наблюдатели – Кто следит за аккаунтом, не подписываясь",
		},
		RecurringConsent: subscriptionRecurringConsent,
	},
	{
		Name:         "Суточный",
		DisplayPrice: "499₽",
		Duration:     "24 часа",
		Subtitle:     "24 часа — и ты знаешь ВСЁ.",
		Features: []string{
			"Максимум данных за 1 день! — полный отчёт по активности: лайки, комментарии, подписки",
			"Подписной рейтинг - Анализ самых значимых подписок",
			"Только факты — без воды — вся аналитика в одном месте",
		},
	},
	{
		Name:         "Эксклюзив",
		DisplayPrice: "999₽",
		Duration:     "10 дней",
		Subtitle:     "Максимальный функционал сервиса на 10 дней!",
		Features: []string{
			"Полный контроль над ситуацией — 10 дней безлимитного доступа к данным",
			"Раскрой, с кем профиль взаимодействует скрытно",
			"Твой личный помощник — анализируй поведение цели день за днём",
		},
		RecurringConsent: subscriptionRecurringConsent,
	},
	{
		Name:         "Фулл",
		DisplayPrice: "349₽",
		Duration:     "4 дня",
		Subtitle:     "Всё, что скрыто - теперь в твоих руках",
		Features: []string{
			"Гибкий срок – Оптимальный баланс цены и времени доступа",
			"Всё, что скрыто — подписки, лайки, комментарии — полный расклад",
			"Идеально для анализа — 4 дня — достаточно, чтобы всё найти",
		},
		RecurringConsent: subscriptionRecurringConsent,
	},
	{
		Name:         "Комбо 5",
		DisplayPrice: "699₽",
		Duration:     "5 запросов",
		Subtitle:     "5 точных ответов на самые важные вопросы",
		Features: []string{
			"5 точных запросов – Получи ответы на самые важные вопросы",
			"Без подписки – Оплати один раз и используй когда угодно",
			"Любые данные – Лайки, комментарии, подписки – что угодно за раз",
		},
	},
	{
		Name:         "Комбо 10",
		DisplayPrice: "1099₽",
		Duration:     "10 запросов",
		Subtitle:     "10 запросов = абсолютная ясность. Бери и узнавай ВСЁ!",
		Features: []string{
			"В 2 раза мощнее! — 10 запросов = полная картина происходящего",
			"Расширенная статистика - Максимум данных за минимум запросов",
			"Экономия 300₽ при двойном объёме!",
		},
	},
}

// PlanCatalog returns a copy of the ordered local plan catalog.
func PlanCatalog() []Plan {
	out := make([]Plan, len(planCatalog))
	for i, plan := range planCatalog {
		plan.Features = append([]string(nil), plan.Features...)
		out[i] = plan
	}
	return out
}

// PlanAt returns the plan at the given catalog index.
func PlanAt(index int) (Plan, bool) {
	if index < 0 || index >= len(planCatalog) {
		return Plan{}, false
	}
	return PlanCatalog()[index], true
}
