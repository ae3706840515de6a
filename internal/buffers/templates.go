package buffers

// WelcomeHeading is the heading text of the template a fresh editor opens with.
const WelcomeHeading = "Welcome to CodeCraft!"

// StarterHeading is the heading text Reset restores.
const StarterHeading = "Hello World!"

const welcomeMarkup = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>CodeCraft Editor</title>
</head>
<body>
    <div class="container">
        <h1>Welcome to CodeCraft!</h1>
        <p>Start coding and see your changes live!</p>
        <button onclick="changeColor()" class="btn">Click me!</button>
    </div>
</body>
</html>`

const welcomeStyles = `.container {
    max-width: 800px;
    margin: 50px auto;
    padding: 40px;
    font-family: 'Segoe UI', system-ui, sans-serif;
    background: linear-gradient(135deg, #f6d365 0%, #fda085 100%);
    border-radius: 20px;
    box-shadow: 0 20px 40px rgba(0,0,0,0.1);
    color: #333;
    text-align: center;
    transition: all 0.3s ease;
}

h1 {
    font-size: 2.5rem;
    margin-bottom: 1rem;
}

p {
    font-size: 1.2rem;
    margin-bottom: 2rem;
    opacity: 0.8;
}

.btn {
    background: linear-gradient(45deg, #667eea, #764ba2);
    color: white;
    border: none;
    padding: 15px 30px;
    font-size: 1.1rem;
    border-radius: 50px;
    cursor: pointer;
    transition: all 0.3s ease;
}

.btn:hover {
    transform: translateY(-3px);
}`

const welcomeScript = `function changeColor() {
    const colors = [
        'linear-gradient(135deg, #667eea 0%, #764ba2 100%)',
        'linear-gradient(135deg, #f093fb 0%, #f5576c 100%)',
        'linear-gradient(135deg, #4facfe 0%, #00f2fe 100%)',
        'linear-gradient(135deg, #43e97b 0%, #38f9d7 100%)'
    ];

    const container = document.querySelector('.container');
    container.style.background = colors[Math.floor(Math.random() * colors.length)];
}

let clickCount = 0;
document.querySelector('.btn').addEventListener('click', function () {
    clickCount++;
    document.querySelector('h1').textContent =
        'Welcome to CodeCraft! (Clicked ' + clickCount + ' times)';
});`

const starterMarkup = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>CodeCraft Editor</title>
</head>
<body>
    <h1>Hello World!</h1>
    <p>Start coding here...</p>
</body>
</html>`

const starterStyles = `body {
    font-family: 'Segoe UI', system-ui, sans-serif;
    margin: 0;
    padding: 20px;
    background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
    color: white;
    min-height: 100vh;
}

h1 {
    color: #fff;
    text-align: center;
    font-size: 3rem;
    margin-bottom: 1rem;
}`

const starterScript = `console.log('Welcome to CodeCraft!');

// Your JavaScript code here
document.addEventListener('DOMContentLoaded', function() {
    console.log('Page loaded successfully!');
});`

// Welcome returns the template a new editor session starts with.
func Welcome() Contents {
	return Contents{Markup: welcomeMarkup, Styles: welcomeStyles, Script: welcomeScript}
}

// Starter returns the template Reset restores.
func Starter() Contents {
	return Contents{Markup: starterMarkup, Styles: starterStyles, Script: starterScript}
}
