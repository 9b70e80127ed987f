package llm

import "fmt"

// overlayTemplate is the fixed hint-panel HTML+JS fragment, adapted from
// original_source/LLM.c's populateFinalDiv. Four %s verbs take the hint
// text, the fifth %d verb takes the listening proxy port the regenerate
// button's fetch() call targets.
const overlayTemplate = `<div id="hintBox" class="` + reassembleMarker + `" style="display: none; position: fixed; top: 235px; right: 50px; width: 17%%; text-align: justify; z-index: 1000; border: 3px solid #b0a6f4; border-radius: 15px; padding: 10px; font-family: verdana; font-size: 15px;">
    <span id="hintContent"></span>
</div>

<button id="hintButton" style="position: fixed; top: 150px; right: 50px; padding: 10px 20px; background-color: #b0a6f4; border: 2px solid #b0a6f4; border-radius: 10px; font-family: verdana; font-size: 15px; cursor: pointer;">
    Show Hint
</button>

<div id="hintNav" style="display: none; position: fixed; top: 200px; right: 50px;">
    <button id="prevHint" style="padding: 3px 8px; border-radius: 5px; z-index: 1000; border: 2px solid #b0a6f4; background-color: white">Previous</button>
    <button id="nextHint" style="padding: 3px 8px; border: 2px solid #b0a6f4; border-radius: 5px; z-index: 1000; background-color: white">Next</button>
</div>

<button id="regenerateHintBtn" style="display: none; position: fixed; top: 461px; right: 50px; padding: 10px 20px; background-color: #b0a6f4; border: 2px solid #b0a6f4; border-radius: 10px; font-family: verdana; font-size: 15px; cursor: pointer; margin-top: 10px;">
    REGENERATE HINTS
</button>
<script>
const hints = [
    "Hint 1: %s",
    "Hint 2: %s",
    "Hint 3: %s",
    "Hint 4: %s"
];
let currentHintIndex = 0;

function positionRegenerateButton() {
    const hintBox = document.getElementById('hintBox');
    const regenerateButton = document.getElementById('regenerateHintBtn');
    const hintBoxHeight = hintBox.offsetHeight;
    regenerateButton.style.top = (235 + hintBoxHeight + 5) + 'px';
}

window.onload = positionRegenerateButton;

document.getElementById('hintButton').addEventListener('click', function () {
    const hintBox = document.getElementById('hintBox');
    const hintNav = document.getElementById('hintNav');
    const generateButton = document.getElementById('regenerateHintBtn');

    if (hintBox.style.display === 'none') {
        hintBox.style.display = 'block';
        hintNav.style.display = 'block';
        generateButton.style.display = 'block';
        this.innerText = 'Hide Hint';
        updateHint();
        positionRegenerateButton();
    } else {
        hintBox.style.display = 'none';
        hintNav.style.display = 'none';
        generateButton.style.display = 'none';
        this.innerText = 'Show Hint';
    }
});

document.getElementById('prevHint').addEventListener('click', function () {
    if (currentHintIndex > 0) {
        currentHintIndex--;
    } else {
        currentHintIndex = hints.length - 1;
    }
    updateHint();
    positionRegenerateButton();
});

document.getElementById('nextHint').addEventListener('click', function () {
    if (currentHintIndex < hints.length - 1) {
        currentHintIndex++;
    } else {
        currentHintIndex = 0;
    }
    updateHint();
    positionRegenerateButton();
});

document.getElementById('regenerateHintBtn').addEventListener('click', function () {
    const regenerateButton = this;
    regenerateButton.innerText = 'LOADING ...';
    regenerateButton.disabled = true;

    fetch('http://127.0.0.1:%d', {
        method: 'POST',
        headers: {
            'Content-Type': 'application/json',
            'X-Action': 'regenerate-hint'
        }
    })
    .then(response => response.json())
    .then(data => {
        const newHints = data.hints;
        if (Array.isArray(newHints) && newHints.length === 4) {
            hints.forEach((hint, index) => {
                const prefix = ` + "`Hint ${index + 1}: `" + `;
                hints[index] = prefix + newHints[index];
            });

            const hintBox = document.getElementById('hintContent');
            hintBox.innerHTML = hints.map(hint => ` + "`<p>${hint}</p>`" + `).join('');

            currentHintIndex = 0;
            updateHint();
            regenerateButton.innerText = 'REGENERATE HINTS';
            regenerateButton.disabled = false;
            positionRegenerateButton();
        }
    })
    .catch(error => console.error('Error:', error));
});

function updateHint() {
    const hintContent = document.getElementById('hintContent');
    hintContent.innerText = hints[currentHintIndex];
}
</script>`

// reassembleMarker is the same idempotence marker
// internal/reassemble.InjectionMarker uses; duplicated as a literal here
// rather than imported so this package doesn't need to depend on
// internal/reassemble just for one constant string.
const reassembleMarker = "M+I_Proxy"

// RenderOverlay fills overlayTemplate with the four hints and the proxy's
// listening port, producing the fragment internal/reassemble.
// InjectBeforeBodyClose injects into the origin response body.
func RenderOverlay(h Hints, proxyPort int) []byte {
	return []byte(fmt.Sprintf(overlayTemplate, h.Category1, h.Category2, h.Category3, h.Category4, proxyPort))
}
