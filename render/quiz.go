package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"strings"

	"videoDistill/core"
)

// QuizRenderer 把測驗 JSON 渲染成可互動的靜態頁面
type QuizRenderer interface {
	Render(videoName string, quiz *core.Quiz, outPath string) error
}

// HTMLQuizRenderer 輸出含隨機排題與即時評分腳本的測驗頁
type HTMLQuizRenderer struct{}

type quizPageData struct {
	VideoName  string
	ReportPage string
	QuizJSON   template.JS
}

var quizTemplate = template.Must(template.New("quiz").Parse(`<!DOCTYPE html>
<html lang="zh-TW">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>教材測驗 - {{.VideoName}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: 'Noto Sans TC', 'Segoe UI', sans-serif; background: #f0f2f5; color: #333; min-height: 100vh; }
        .header { background: linear-gradient(135deg, #1a2a6c, #b21f1f, #fdbb2d); padding: 40px 20px; text-align: center; color: white; }
        .header h1 { font-size: 2em; margin-bottom: 8px; }
        .container { max-width: 800px; margin: 0 auto; padding: 30px 20px; }
        .question-card { background: white; border-radius: 12px; padding: 24px; margin-bottom: 20px; box-shadow: 0 2px 10px rgba(0,0,0,0.06); }
        .question-card.correct { border-left: 5px solid #22c55e; background: #f0fdf4; }
        .question-card.wrong { border-left: 5px solid #ef4444; background: #fef2f2; }
        .q-header { display: flex; align-items: center; gap: 10px; margin-bottom: 14px; }
        .q-number { background: #1a2a6c; color: white; border-radius: 50%; width: 32px; height: 32px; display: flex; align-items: center; justify-content: center; font-weight: bold; font-size: 0.9em; }
        .q-badge { display: inline-block; padding: 2px 10px; border-radius: 20px; font-size: 0.75em; font-weight: bold; }
        .badge-single { background: #dbeafe; color: #1e40af; }
        .badge-multiple { background: #fce7f3; color: #9d174d; }
        .badge-cat { background: #f3f4f6; color: #6b7280; margin-left: 4px; }
        .q-text { font-size: 1.1em; font-weight: 600; margin-bottom: 16px; line-height: 1.6; }
        .options { display: flex; flex-direction: column; gap: 8px; }
        .option { display: flex; align-items: center; padding: 12px 16px; border: 2px solid #e5e7eb; border-radius: 8px; cursor: pointer; user-select: none; }
        .option.selected { border-color: #3b82f6; background: #dbeafe; }
        .option.show-correct { border-color: #22c55e; background: #dcfce7; }
        .option.show-wrong { border-color: #ef4444; background: #fee2e2; }
        .option input { display: none; }
        .option-letter { font-weight: bold; margin-right: 12px; color: #6b7280; width: 20px; }
        .explanation { display: none; margin-top: 14px; padding: 14px; background: #f8fafc; border-radius: 8px; border-left: 4px solid #3b82f6; font-size: 0.95em; color: #475569; }
        .explanation.visible { display: block; }
        .submit-area { text-align: center; padding: 30px 0; }
        .submit-btn { padding: 16px 60px; background: linear-gradient(135deg, #1a2a6c, #b21f1f); color: white; border: none; border-radius: 30px; font-size: 1.15em; font-weight: bold; cursor: pointer; }
        .submit-btn:disabled { opacity: 0.5; cursor: not-allowed; }
        .score-board { display: none; background: white; border-radius: 16px; padding: 30px; text-align: center; margin-bottom: 30px; }
        .score-board.visible { display: block; }
        .score-number { font-size: 3.5em; font-weight: 900; color: #1a2a6c; }
        .score-bar { height: 12px; background: #e5e7eb; border-radius: 6px; margin: 20px auto; max-width: 400px; overflow: hidden; }
        .score-bar-fill { height: 100%; border-radius: 6px; transition: width 1s ease-out; }
        .back-link { display: inline-block; margin-top: 10px; color: #1a2a6c; text-decoration: none; font-weight: bold; }
    </style>
</head>
<body>
    <div class="header">
        <h1>📝 教材理解度測驗</h1>
        <p>{{.VideoName}}</p>
    </div>

    <div class="container">
        <div class="score-board" id="scoreBoard">
            <div class="score-number" id="scoreNumber">0</div>
            <div class="score-label" id="scoreLabel">答對 0 / 0 題</div>
            <div class="score-bar"><div class="score-bar-fill" id="scoreBarFill" style="width: 0%;"></div></div>
        </div>

        <div id="quizContainer"></div>

        <div class="submit-area">
            <button class="submit-btn" id="submitBtn" onclick="submitQuiz()">送出答案</button>
            <br>
            <a href="{{.ReportPage}}" class="back-link">← 返回教材報告</a>
        </div>
    </div>

<script>
const quizData = {{.QuizJSON}};

// Fisher-Yates Shuffle，每次載入隨機排列題目
function shuffle(arr) {
    const a = [...arr];
    for (let i = a.length - 1; i > 0; i--) {
        const j = Math.floor(Math.random() * (i + 1));
        [a[i], a[j]] = [a[j], a[i]];
    }
    return a;
}

const questions = shuffle(quizData.questions);
const letters = ['A', 'B', 'C', 'D'];
const userAnswers = {};

function renderQuiz() {
    const container = document.getElementById('quizContainer');
    container.innerHTML = '';

    questions.forEach((q, idx) => {
        const typeLabel = q.type === 'single' ? '單選' : '多選';
        const badgeClass = q.type === 'single' ? 'badge-single' : 'badge-multiple';
        const inputType = q.type === 'single' ? 'radio' : 'checkbox';

        let optionsHtml = '';
        letters.forEach(key => {
            optionsHtml += ` + "`" + `
                <label class="option" data-q="${idx}" data-val="${key}" onclick="selectOption(event, this, ${idx}, '${key}', '${q.type}')">
                    <input type="${inputType}" name="q${idx}" value="${key}">
                    <span class="option-letter">${key}</span>
                    <span>${q.options[key]}</span>
                </label>` + "`" + `;
        });

        container.innerHTML += ` + "`" + `
            <div class="question-card" id="card-${idx}">
                <div class="q-header">
                    <div class="q-number">${idx + 1}</div>
                    <span class="q-badge ${badgeClass}">${typeLabel}</span>
                    <span class="q-badge badge-cat">${q.category}</span>
                </div>
                <div class="q-text">${q.question}</div>
                <div class="options" id="options-${idx}">${optionsHtml}</div>
                <div class="explanation" id="expl-${idx}"><strong>📖 詳解：</strong>${q.explanation}</div>
            </div>` + "`" + `;
    });
}

function selectOption(event, el, qIdx, val, type) {
    event.preventDefault();
    if (document.getElementById('submitBtn').disabled) return;

    if (type === 'single') {
        document.querySelectorAll('[data-q="' + qIdx + '"]').forEach(o => o.classList.remove('selected'));
        el.classList.add('selected');
        userAnswers[qIdx] = [val];
    } else {
        el.classList.toggle('selected');
        const selected = [];
        document.querySelectorAll('[data-q="' + qIdx + '"].selected').forEach(o => selected.push(o.dataset.val));
        userAnswers[qIdx] = selected;
    }
}

function submitQuiz() {
    const unanswered = questions.filter((_, i) => !userAnswers[i] || userAnswers[i].length === 0);
    if (unanswered.length > 0) {
        if (!confirm('還有 ' + unanswered.length + ' 題未作答，確定要送出嗎？')) return;
    }

    document.getElementById('submitBtn').disabled = true;

    let correct = 0;
    questions.forEach((q, idx) => {
        const card = document.getElementById('card-' + idx);
        const ans = (userAnswers[idx] || []).slice().sort();
        const correctAns = q.answer.slice().sort();
        const isCorrect = ans.length === correctAns.length && ans.every((v, i) => v === correctAns[i]);

        card.classList.add(isCorrect ? 'correct' : 'wrong');
        if (isCorrect) correct++;

        letters.forEach(key => {
            const optionEl = document.querySelector('[data-q="' + idx + '"][data-val="' + key + '"]');
            if (correctAns.includes(key)) {
                optionEl.classList.add('show-correct');
            } else if (ans.includes(key)) {
                optionEl.classList.add('show-wrong');
            }
            optionEl.style.cursor = 'default';
        });

        document.getElementById('expl-' + idx).classList.add('visible');
    });

    const total = questions.length;
    const pct = Math.round((correct / total) * 100);
    const scoreBoard = document.getElementById('scoreBoard');
    scoreBoard.classList.add('visible');
    document.getElementById('scoreNumber').textContent = pct + '分';
    document.getElementById('scoreLabel').textContent = '答對 ' + correct + ' / ' + total + ' 題';

    const fill = document.getElementById('scoreBarFill');
    fill.style.background = pct >= 80 ? '#22c55e' : pct >= 60 ? '#f59e0b' : '#ef4444';
    setTimeout(() => fill.style.width = pct + '%', 100);

    scoreBoard.scrollIntoView({ behavior: 'smooth' });
}

renderQuiz();
</script>
</body>
</html>
`))

// Render 生成測驗頁面，測驗資料以 JSON 內嵌供前端評分
func (r *HTMLQuizRenderer) Render(videoName string, quiz *core.Quiz, outPath string) error {
	log.Printf("正在生成測驗頁面: %s...", filepath.Base(outPath))

	quizJSON, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %v", err)
	}

	stem := strings.TrimSuffix(videoName, filepath.Ext(videoName))
	data := quizPageData{
		VideoName:  videoName,
		ReportPage: stem + "_report_v2.html",
		QuizJSON:   template.JS(quizJSON),
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create quiz page: %v", err)
	}
	defer f.Close()
	if err := quizTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("render quiz page: %v", err)
	}
	return nil
}
