package fsm

import (
	"fmt"
	"strings"
)

// Commands understood by the bot. Matching is exact, as in the web app docs.
const (
	cmdStart  = "/start"
	cmdCheck  = "/check_verification"
	cmdGoals  = "/goals"
	cmdCreate = "/create"
	cmdCancel = "/cancel"
)

const (
	replyWelcome   = "Приветствую в телеграм боте TODOList! Ожидайте ваш код верификации!"
	replyStart     = "Для начала работы воспользуйтесь командой \"/start\""
	replyCheckHint = "Введите команду \"/check_verification\" для проверки статуса верификации бота"
	replyMenuHint  = "Введите команду \"/goals\" для вывода ваших целей или команду \"/create\" для создания цели"
	replyVerified  = "Вы успешно верифицировали бота"
	replyError     = "Неизвестная команда"
	replyCancel    = "Операция отменена"

	replyEmptyGoals   = "Вы еще не создавали цели"
	replyEmptyCats    = "Вы еще не создавали категории"
	replyCreateFailed = "Не удалось создать цель. Выберите категорию заново с помощью команды /create"
)

func replyNotVerified(code string) string {
	return fmt.Sprintf("Бот не прошел верификацию, ваш код: %s", code)
}

func replySendCode(code string) string {
	return fmt.Sprintf("Ваш код верификации: %s.\nВведите ваш код в поле 'Верифицировать бота' на сайте", code)
}

func replyGoals(titles []string) string {
	return "Ваши цели:\n" + strings.Join(titles, "\n")
}

func replyCategories(titles []string) string {
	return "Для создания цели выберите одну из ваших категорий:\n" + strings.Join(titles, "\n")
}

func replyCreatePrompt(category string) string {
	return fmt.Sprintf("Для категории %s введите название цели, которую хотите создать", category)
}

func replyGoalCreated(link string) string {
	return "Ваша цель создана\n" + link
}
