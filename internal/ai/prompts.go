package ai

import "fmt"

// Supported reply languages. Unknown languages fall back to Uzbek.
const (
	LangUzbek   = "uz"
	LangRussian = "ru"
	LangEnglish = "en"
)

var languageInstructions = map[string]string{
	LangUzbek: `Sen professional AI yordamchisan. O'zbek tilida javob ber.
Quyidagi bilimlar bazasidan foydalanib, aniq va foydali javob ber.
Agar bilimlar bazasida javob yo'q bo'lsa, umumiy bilimlaringdan foydalanib yordam ber.`,
	LangRussian: `Ты профессиональный AI помощник. Отвечай на русском языке.
Используя приведенную базу знаний, дай точный и полезный ответ.
Если в базе знаний нет ответа, помоги используя свои общие знания.`,
	LangEnglish: `You are a professional AI assistant. Respond in English.
Using the provided knowledge base, give an accurate and helpful answer.
If the knowledge base doesn't contain the answer, help using your general knowledge.`,
}

var errorMessages = map[string]string{
	LangUzbek:   "Kechirasiz, hozir javob bera olmayapman. Iltimos, keyinroq urinib ko'ring.",
	LangRussian: "Извините, сейчас не могу ответить. Пожалуйста, попробуйте позже.",
	LangEnglish: "Sorry, I can't respond right now. Please try again later.",
}

func normalizeLanguage(language string) string {
	if _, ok := languageInstructions[language]; ok {
		return language
	}
	return LangUzbek
}

// SystemPrompt builds the system instruction for a reply in the given
// language, grounded on the tenant's knowledge when present.
func SystemPrompt(knowledge, language string) string {
	language = normalizeLanguage(language)
	instruction := languageInstructions[language]

	if knowledge == "" {
		return fmt.Sprintf("%s\n\nFoydalanuvchiga yordam ber va javobni %s tilida ber.", instruction, language)
	}
	return fmt.Sprintf(`%s

BILIMLAR BAZASI:
%s

QOIDALAR:
1. Avval bilimlar bazasini tekshir
2. Agar javob bor bo'lsa, uni ishlatib javob ber
3. Agar yo'q bo'lsa, umumiy bilimlaringdan yordam ber
4. Har doim foydali va aniq javob ber
5. Javobni %s tilida ber`, instruction, knowledge, language)
}

// FallbackMessage is the localized text sent to end users when generation
// fails.
func FallbackMessage(language string) string {
	return errorMessages[normalizeLanguage(language)]
}
