package diary

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/magisk317/diary-plugin/internal/domain"
)

// defaultPromptTemplate — встроенный промпт дневника. Завершается меткой
// "日记内容:", после которой модель пишет сам текст.
const defaultPromptTemplate = `%s
我%s

今天是%s,回顾一下到现在为止的聊天记录:
%s

现在我要写一篇%d字左右的日记,记录到现在为止的感受:
1. 开头必须是日期和天气:%s
2. 像睡前随手写的感觉,轻松自然
3. 回忆到现在为止的对话,加入我的真实感受
4. 如果有有趣的事就重点写,平淡的一天就简单记录
5. 偶尔加一两句小总结或感想
6. 不要写成流水账,要有重点和感情色彩
7. 用第一人称"我"来写

书写风格：
你需要写的日常且口语化的文段，平淡一些
遣词造句尽量简短一些。请注意把握聊天内容，不要书写的太有条理，可以有个性。
%s
请注意不要输出多余内容(包括前后缀，冒号和引号，括号，表情等)，只输出一段日记内容就好。
不要输出多余内容(包括前后缀，冒号和引号，括号，表情包，at或 @等 )。
日记内容:`

// placeholderPattern находит подстановки вида {name} в пользовательском шаблоне.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// PromptInput — данные для сборки промпта.
type PromptInput struct {
	Date            string
	Timeline        string
	DateWithWeather string
	TargetLength    int
	Persona         domain.Persona
}

// ComposePrompt собирает промпт генерации. Непустой customTemplate
// рендерится с набором подстановок; любая ошибка рендеринга или пустой
// результат молча откатывают на встроенный шаблон.
func ComposePrompt(in PromptInput, customTemplate string) string {
	name := ""
	if in.Persona.Nickname != "" {
		name = "\n我的名字是" + in.Persona.Nickname
	}

	if customTemplate != "" {
		values := map[string]string{
			"date":              in.Date,
			"timeline":          in.Timeline,
			"date_with_weather": in.DateWithWeather,
			"target_length":     strconv.Itoa(in.TargetLength),
			"personality_desc":  in.Persona.Core,
			"style":             in.Persona.Style,
			"interest":          in.Persona.Interest,
			"name":              name,
		}
		if rendered, err := renderTemplate(customTemplate, values); err == nil && strings.TrimSpace(rendered) != "" {
			return rendered
		}
	}

	return fmt.Sprintf(defaultPromptTemplate,
		name,
		in.Persona.Core,
		in.Date,
		in.Timeline,
		in.TargetLength,
		in.DateWithWeather,
		in.Persona.Style,
	)
}

// renderTemplate подставляет значения в шаблон. Неизвестная подстановка
// считается ошибкой, чтобы опечатка в шаблоне не ушла в модель незамеченной.
func renderTemplate(template string, values map[string]string) (string, error) {
	var unknown string
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		value, ok := values[key]
		if !ok {
			if unknown == "" {
				unknown = key
			}
			return match
		}
		return value
	})
	if unknown != "" {
		return "", fmt.Errorf("неизвестная подстановка в шаблоне: %s", unknown)
	}
	return rendered, nil
}
