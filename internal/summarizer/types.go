package summarizer

// Summary 一次总结的结果
// Degraded 为 true 时 Text 是诊断信息而不是真正的总结
type Summary struct {
	Text     string
	Degraded bool
	Cause    error
}

// degradedPrefix 降级结果的文本前缀
const degradedPrefix = "Error generating summary: "

func Succeeded(text string) Summary {
	return Summary{Text: text}
}

func Degraded(err error) Summary {
	return Summary{
		Text:     degradedPrefix + err.Error(),
		Degraded: true,
		Cause:    err,
	}
}
